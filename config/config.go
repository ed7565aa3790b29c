package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the top level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Liveness    LivenessConfig    `mapstructure:"liveness"`
	Admin       AdminConfig       `mapstructure:"admin"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
}

// ServerConfig holds server related settings.
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DataDir       string `mapstructure:"data_dir"`
	FacesDir      string `mapstructure:"faces_dir"`      // where enrolled face crops are stored
	FacesURL      string `mapstructure:"faces_url"`      // URL path the crops are served from
	SessionSecret string `mapstructure:"session_secret"` // cookie signing secret
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds database settings (SQLite).
type DBConfig struct {
	File string `mapstructure:"file"`
}

// RecognitionConfig holds the face detection / LBPH recognition settings.
type RecognitionConfig struct {
	CascadeFile  string  `mapstructure:"cascade_file"`  // Haar cascade XML for frontal faces
	ModelFile    string  `mapstructure:"model_file"`    // trained LBPH model artifact
	Threshold    float64 `mapstructure:"threshold"`     // acceptance threshold, inclusive (lower distance = better)
	LBPHRadius   int     `mapstructure:"lbph_radius"`
	LBPHNeighbors int    `mapstructure:"lbph_neighbors"`
	ScaleFactor  float64 `mapstructure:"scale_factor"`
	MinNeighbors int     `mapstructure:"min_neighbors"`
	MinSize      int     `mapstructure:"min_size"`
	// Anti-spoof heuristics applied at login
	MinFaceAreaRatio float64 `mapstructure:"min_face_area_ratio"`
	MaxFaceAreaRatio float64 `mapstructure:"max_face_area_ratio"`
	MinBoxSharpness  float64 `mapstructure:"min_box_sharpness"`
}

// LivenessConfig holds the challenge-response liveness settings.
type LivenessConfig struct {
	Required      bool    `mapstructure:"required"`
	WindowSeconds int     `mapstructure:"window_seconds"`
	MaxFrames     int     `mapstructure:"max_frames"`
	MinMotion     float64 `mapstructure:"min_motion"`    // mean of median optical flow magnitudes
	MaxGlare      float64 `mapstructure:"max_glare"`     // fraction of pixels brighter than 245
	MinSharpness  float64 `mapstructure:"min_sharpness"` // Laplacian variance of the middle frame
}

// AdminConfig holds the fixed admin credential pair for the enrollment gate.
type AdminConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// MQTTConfig holds settings for the optional security-event publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// CleanupConfig holds event-log retention settings.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// Load loads the configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment variables overlay the file values
	v.AutomaticEnv()
	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.faces_dir", "/data/faces")
	v.SetDefault("server.faces_url", "/faces")
	v.SetDefault("server.session_secret", "dev-secret-change-me") // change outside of development

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/facegate.log")

	// DB defaults
	v.SetDefault("db.file", "/data/facegate.db")

	// Recognition defaults
	v.SetDefault("recognition.cascade_file", "models/haarcascade_frontalface_default.xml")
	v.SetDefault("recognition.model_file", "/data/lbph_model.yml")
	v.SetDefault("recognition.threshold", 70.0)
	v.SetDefault("recognition.lbph_radius", 2)
	v.SetDefault("recognition.lbph_neighbors", 8)
	v.SetDefault("recognition.scale_factor", 1.1)
	v.SetDefault("recognition.min_neighbors", 5)
	v.SetDefault("recognition.min_size", 60)
	v.SetDefault("recognition.min_face_area_ratio", 0.04)
	v.SetDefault("recognition.max_face_area_ratio", 0.75)
	v.SetDefault("recognition.min_box_sharpness", 25.0)

	// Liveness defaults
	v.SetDefault("liveness.required", true)
	v.SetDefault("liveness.window_seconds", 20)
	v.SetDefault("liveness.max_frames", 12)
	v.SetDefault("liveness.min_motion", 0.50)
	v.SetDefault("liveness.max_glare", 0.25)
	v.SetDefault("liveness.min_sharpness", 30.0)

	// Admin defaults (change these outside of development)
	v.SetDefault("admin.user", "admin")
	v.SetDefault("admin.password", "0000")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "facegate")
	v.SetDefault("mqtt.topic", "facegate/events")

	// Cleanup defaults
	v.SetDefault("cleanup.retention_days", 30)
}

// ensureDirectories makes sure all required directories exist.
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Server.FacesDir, 0755); err != nil {
		return fmt.Errorf("failed to create faces directory: %w", err)
	}

	logDir := filepath.Dir(cfg.Log.File)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	modelDir := filepath.Dir(cfg.Recognition.ModelFile)
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	return nil
}
