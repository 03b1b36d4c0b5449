package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"educheck/internal/app"
	"educheck/internal/config"
	"educheck/internal/logger"
)

func main() {
	listDevices := flag.Bool("list-devices", false, "print detected cameras and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listDevices {
		catalog := app.NewCatalog(cfg, appLogger)
		devices := catalog.List(ctx)
		preferred, _ := catalog.Preferred(devices)
		for _, d := range devices {
			marker := " "
			if d.ID == preferred {
				marker = "*"
			}
			fmt.Printf("%s %-20s %s\n", marker, d.ID, d.Label)
		}
		if len(devices) == 0 {
			fmt.Println("No camera found")
		}
		return
	}

	application := app.NewApp(cfg, appLogger)
	if err := application.Run(ctx); err != nil {
		appLogger.Error("Terminal stopped with error: %v", err)
		os.Exit(1)
	}
}
