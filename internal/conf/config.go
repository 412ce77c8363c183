// config.go: This file contains the configuration for the roadwatch application.
// It defines the settings struct and functions to load and access the settings.
package conf

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/roadwatch/roadwatch-go/internal/secrets"
)

// MainSettings contains top-level application settings.
type MainSettings struct {
	Name string // name of this node, used as the system reporter identity
	Log  struct {
		Enabled bool   // true to enable file logging
		Path    string // path to log file
	}
}

// WebServerSettings contains settings for the HTTP API server.
type WebServerSettings struct {
	Enabled bool   // true to enable the HTTP API
	Port    string // port to listen on
	Debug   bool   // true to enable debug logging of API requests
}

// SQLiteSettings contains settings for the SQLite registry store.
type SQLiteSettings struct {
	Enabled bool   // true to enable the SQLite store
	Path    string // path to the SQLite database file
}

// MySQLSettings contains settings for the MySQL registry store.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings groups the persistent store targets.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// DetectorSettings contains settings for the detection model collaborator.
type DetectorSettings struct {
	ServiceURL      string        // base URL of the model serving endpoint
	Timeout         time.Duration // per-request timeout
	ConfidenceFloor float64       // detections below this confidence are discarded as noise
}

// GeocodingSettings contains settings for the reverse geocoding collaborator.
type GeocodingSettings struct {
	Endpoint  string        // reverse geocoding endpoint, Nominatim compatible
	UserAgent string        // user agent sent to the geocoding service
	Timeout   time.Duration // after this the static fallback table is used
}

// DedupSettings contains settings for the geospatial dedup engine.
type DedupSettings struct {
	RadiusMeters float64 // search radius for duplicate candidates
}

// MediaStoreSettings contains settings for the binary object store.
type MediaStoreSettings struct {
	Path          string // directory media objects are written to
	PublicBaseURL string // base URL public object URLs are built from
}

// SecuritySettings contains settings for authentication.
type SecuritySettings struct {
	JWTSecret          string        // HMAC secret for bearer tokens, supports ${VAR} references
	JWTSecretFile      string        // file to read the HMAC secret from, wins over JWTSecret
	TokenTTL           time.Duration // bearer token lifetime
	BcryptCost         int           // cost parameter for password hashing
	StrictJurisdiction bool          // fail closed when an authority has no jurisdiction area on file
}

// VideoSettings contains settings for video frame extraction.
type VideoSettings struct {
	FfmpegPath    string  // path to ffmpeg binary
	FrameInterval float64 // seconds between extracted frames
}

// Settings contains all application settings.
type Settings struct {
	Debug bool // true to enable debug output

	Main      MainSettings
	WebServer WebServerSettings
	Output    OutputSettings

	Detector   DetectorSettings
	Geocoding  GeocodingSettings
	Dedup      DedupSettings
	MediaStore MediaStoreSettings
	Security   SecuritySettings
	Video      VideoSettings

	Version   string // runtime value, set by build
	BuildDate string // runtime value, set by build
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into the global settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/roadwatch")
	viper.AddConfigPath("/etc/roadwatch")

	viper.SetEnvPrefix("roadwatch")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file found, defaults and environment apply.
		log.Println("Config file not found, using defaults")
	}

	return nil
}

func validateSettings(settings *Settings) error {
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("no registry store enabled, set output.sqlite.enabled or output.mysql.enabled")
	}

	jwtSecret, err := secrets.MustResolve("security.jwtsecret",
		settings.Security.JWTSecretFile, settings.Security.JWTSecret)
	if err != nil {
		return err
	}
	settings.Security.JWTSecret = jwtSecret

	if settings.Output.MySQL.Enabled {
		password, err := secrets.ExpandString(settings.Output.MySQL.Password)
		if err != nil {
			return fmt.Errorf("resolving output.mysql.password: %w", err)
		}
		settings.Output.MySQL.Password = password
	}

	if settings.Dedup.RadiusMeters <= 0 {
		settings.Dedup.RadiusMeters = DefaultDedupRadiusMeters
	}
	return nil
}

// Setting returns the current settings instance, loading them on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("error loading settings: %v", err)
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings injects settings for tests.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
	once.Do(func() {})
}
