package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"educheck/internal/config"
	"educheck/internal/logger"
	"educheck/internal/models"
	"educheck/internal/routes"
	"educheck/internal/services"
	"educheck/internal/services/camera"
	"educheck/internal/services/checkin"
	"educheck/internal/services/decoder"
	"educheck/internal/services/overlay"
	"educheck/internal/services/websocket"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	catalog    *camera.Catalog
	decoder    *decoder.QRDecoder
	hubService *websocket.HubService
	scanner    *services.Scanner
}

func NewApp(cfg *config.Config, log *logger.Logger) *App {
	catalog := NewCatalog(cfg, log)
	source := camera.NewSource(camera.GocvOpener(cfg.FrameWidth, cfg.FrameHeight), camera.ProbeDevice, log.Named("camera"))
	qr := decoder.NewQRDecoder()
	renderer := overlay.NewRenderer(log.Named("overlay"))
	client := checkin.NewClient(cfg.CheckInEndpoint(), cfg.CheckInTimeout, log.Named("checkin"))
	hub := websocket.NewHubService(log.Named("hub"))

	scanner := services.NewScanner(catalog, source, qr, renderer, client, hub, services.ScannerConfig{
		Hold:            cfg.HoldDuration,
		PreviewInterval: cfg.PreviewInterval,
		PreviewQuality:  cfg.PreviewQuality,
	}, log.Named("scanner"))

	return &App{
		config:     cfg,
		logger:     log,
		catalog:    catalog,
		decoder:    qr,
		hubService: hub,
		scanner:    scanner,
	}
}

// NewCatalog builds the device catalog from sysfs plus the devices declared
// in configuration.
func NewCatalog(cfg *config.Config, log *logger.Logger) *camera.Catalog {
	static := make(camera.StaticEnumerator, 0, len(cfg.CameraDevices))
	for _, d := range cfg.CameraDevices {
		static = append(static, models.CameraDevice{ID: d.ID, Label: d.Label, Kind: models.KindVideoInput})
	}
	return camera.NewCatalog(cfg.CameraHints, cfg.CameraDevice, log.Named("catalog"),
		camera.NewSysfsEnumerator(cfg.CameraSysfs), static)
}

// Run serves the operator API until ctx is cancelled, then releases the
// camera and shuts the server down.
func (a *App) Run(ctx context.Context) error {
	router := routes.SetupRoutes(a.scanner, a.hubService, a.config, a.logger.Named("http"))
	server := &http.Server{
		Addr:              a.config.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.config.Autostart {
		// Błąd otwarcia kamery jest widoczny w statusie, nie kończy procesu
		if err := a.scanner.Start(ctx); err != nil {
			a.logger.Warning("Autostart failed: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hubService.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.logger.Info("🚀 Check-in terminal")
		a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
		a.logger.Info("🎯 Backend: %s", a.config.CheckInEndpoint())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		// Najpierw serwer, żeby żadne żądanie nie uruchomiło skanera po Stop
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		a.scanner.Stop()
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		a.logger.Info("🛑 Server stopped")
		return nil
	})

	err := g.Wait()
	if cerr := a.decoder.Close(); cerr != nil {
		a.logger.Warning("Error releasing decoder: %v", cerr)
	}
	return err
}

func (a *App) Scanner() *services.Scanner {
	return a.scanner
}

func (a *App) Catalog() *camera.Catalog {
	return a.catalog
}
