package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/facescan/go/internal/models"
)

// RelayConfig is read from RELAY_* variables
type RelayConfig struct {
	Port           string        `envconfig:"PORT" default:"4000"`
	PingInterval   time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"60s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"8388608"`
	SendBuffer     int           `envconfig:"SEND_BUFFER" default:"256"`

	// Mirroring to JetStream is off unless a URL is set
	NATSURL           string        `envconfig:"NATS_URL"`
	NATSStream        string        `envconfig:"NATS_STREAM" default:"FACESCAN_STATE"`
	NATSSubjectPrefix string        `envconfig:"NATS_SUBJECT_PREFIX" default:"facescan.state"`
	NATSMaxAge        time.Duration `envconfig:"NATS_MAX_AGE" default:"168h"`
}

// AdminConfig is read from ADMIN_* variables
type AdminConfig struct {
	Port           string `envconfig:"PORT" default:"3001"`
	RelayURL       string `envconfig:"RELAY_URL" default:"ws://localhost:4000/ws"`
	CaptureSamples int    `envconfig:"CAPTURE_SAMPLES" default:"3"`
}

// KioskConfig is read from KIOSK_* variables
type KioskConfig struct {
	Port         string `envconfig:"PORT" default:"3002"`
	RelayURL     string `envconfig:"RELAY_URL" default:"ws://localhost:4000/ws"`
	DataDir      string `envconfig:"DATA_DIR" default:"./data/kiosk"`
	SettingsFile string `envconfig:"SETTINGS_FILE" default:"work-settings.yaml"`
	Timezone     string `envconfig:"TIMEZONE"`

	// Recognizer is "mock" or "http"
	Recognizer    string  `envconfig:"RECOGNIZER" default:"mock"`
	MockSeed      int64   `envconfig:"MOCK_SEED"`
	FaceURL       string  `envconfig:"FACE_URL" default:"http://localhost:8000"`
	FaceThreshold float64 `envconfig:"FACE_THRESHOLD" default:"0.6"`
	FaceSkip      bool    `envconfig:"FACE_SKIP"`
}

// LoadDotEnv loads .env files into the environment; a missing file is not an error
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
}

// LoadRelay reads the relay configuration
func LoadRelay() (RelayConfig, error) {
	var cfg RelayConfig
	if err := envconfig.Process("relay", &cfg); err != nil {
		return cfg, fmt.Errorf("load relay config: %w", err)
	}
	return cfg, nil
}

// LoadAdmin reads the admin configuration
func LoadAdmin() (AdminConfig, error) {
	var cfg AdminConfig
	if err := envconfig.Process("admin", &cfg); err != nil {
		return cfg, fmt.Errorf("load admin config: %w", err)
	}
	return cfg, nil
}

// LoadKiosk reads the kiosk configuration
func LoadKiosk() (KioskConfig, error) {
	var cfg KioskConfig
	if err := envconfig.Process("kiosk", &cfg); err != nil {
		return cfg, fmt.Errorf("load kiosk config: %w", err)
	}
	switch cfg.Recognizer {
	case "mock", "http":
	default:
		return cfg, fmt.Errorf("load kiosk config: unknown recognizer %q", cfg.Recognizer)
	}
	return cfg, nil
}

// Location resolves Timezone, defaulting to the host zone
func (c KioskConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LoadWorkSettings overlays the YAML file at path onto the default settings.
// A missing file yields the defaults.
func LoadWorkSettings(path string) (models.WorkSettings, error) {
	settings := models.DefaultWorkSettings()
	if path == "" {
		return settings, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info().Str("path", path).Msg("work settings file not found, using defaults")
			return settings, nil
		}
		return settings, fmt.Errorf("error reading work settings: %w", err)
	}
	if err := yaml.Unmarshal(buf, &settings); err != nil {
		return settings, fmt.Errorf("error parsing work settings: %w", err)
	}
	if err := validateWorkSettings(settings); err != nil {
		return settings, err
	}
	return settings, nil
}

func validateWorkSettings(s models.WorkSettings) error {
	start, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time %q: %w", s.StartTime, err)
	}
	end, err := time.Parse("15:04", s.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time %q: %w", s.EndTime, err)
	}
	if !end.After(start) {
		return fmt.Errorf("end_time %s must be after start_time %s", s.EndTime, s.StartTime)
	}
	if s.BreakDuration < 0 || s.LateThreshold < 0 || s.EarlyThreshold < 0 || s.OvertimeThreshold < 0 {
		return errors.New("durations and thresholds must not be negative")
	}
	return nil
}
