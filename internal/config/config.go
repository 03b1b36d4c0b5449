package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        int    `validate:"min=1,max=65535"`
	CORSOrigins []string

	CheckInURL     string        `validate:"required,url"`
	CheckInPath    string        `validate:"required,startswith=/"`
	CheckInTimeout time.Duration `validate:"gt=0"`

	HoldDuration time.Duration `validate:"gt=0"` // Jak długo wynik jest wyświetlany przed ponownym uzbrojeniem

	CameraHints   []string
	CameraDevices []StaticDevice `validate:"dive"`
	CameraDevice  string         // Wymuszone urządzenie, jeśli obecne w katalogu
	CameraSysfs   string
	FrameWidth    int `validate:"min=0"`
	FrameHeight   int `validate:"min=0"`

	PreviewInterval int `validate:"min=1"`         // Co którą klatkę wysyłać podgląd (1=każdą)
	PreviewQuality  int `validate:"min=1,max=100"` // Jakość JPEG podglądu
	Autostart       bool

	LogDirectory string `validate:"required"`
	LogLevel     string `validate:"oneof=debug info warn warning error"`
	LogFormat    string `validate:"oneof=console json"`
}

// StaticDevice is a camera declared in configuration rather than discovered,
// e.g. a network stream.
type StaticDevice struct {
	Label string `validate:"required"`
	ID    string `validate:"required"`
}

// CheckInEndpoint joins the backend base URL and the check-in path.
func (c *Config) CheckInEndpoint() string {
	return strings.TrimRight(c.CheckInURL, "/") + c.CheckInPath
}

// Addr is the listen address of the operator HTTP surface.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (*Config, error) {
	// Brak pliku .env nie jest błędem - zostają zmienne systemowe
	_ = godotenv.Load()

	devices, err := parseDevices(getEnv("CAMERA_DEVICES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8080),
		CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"*"}),
		CheckInURL:      getEnv("CHECKIN_URL", "http://localhost:5000"),
		CheckInPath:     getEnv("CHECKIN_PATH", "/attendance/check-in"),
		CheckInTimeout:  getEnvAsDuration("CHECKIN_TIMEOUT", 10*time.Second),
		HoldDuration:    getEnvAsDuration("HOLD_DURATION", 3*time.Second),
		CameraHints:     getEnvAsList("CAMERA_HINTS", []string{"back", "rear", "trasera", "environment"}),
		CameraDevices:   devices,
		CameraDevice:    getEnv("CAMERA_DEVICE", ""),
		CameraSysfs:     getEnv("CAMERA_SYSFS", filepath.Join("/sys", "class", "video4linux")),
		FrameWidth:      getEnvAsInt("FRAME_WIDTH", 0),
		FrameHeight:     getEnvAsInt("FRAME_HEIGHT", 0),
		PreviewInterval: getEnvAsInt("PREVIEW_INTERVAL", 3),
		PreviewQuality:  getEnvAsInt("PREVIEW_QUALITY", 70),
		Autostart:       getEnvAsBool("AUTOSTART", true),
		LogDirectory:    getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// parseDevices reads "label=id;label=id" pairs.
func parseDevices(raw string) ([]StaticDevice, error) {
	var devices []StaticDevice
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		label, id, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid CAMERA_DEVICES entry %q: expected label=id", entry)
		}
		devices = append(devices, StaticDevice{
			Label: strings.TrimSpace(label),
			ID:    strings.TrimSpace(id),
		})
	}
	return devices, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
