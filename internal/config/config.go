package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "racetrack.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. RACETRACK_STORAGE_TYPE.
const EnvPrefix = "RACETRACK"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend.
type SQLiteConfig struct {
	DumpInterval time.Duration
	Dir          string
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// WebSocketConfig holds settings for streaming to an observer server.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type      string // memory, sqlite, postgres, websocket
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	DB        DBConfig
	WebSocket WebSocketConfig
}

// OTelConfig configures the OpenTelemetry log and metric providers.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// RaceConfig holds race engine settings.
type RaceConfig struct {
	Authority       bool   // this host holds state authority
	Policy          string // all-finished, first-finisher, open-ended
	FinishMode      string // trigger, checkpoint
	FinishRadius    float64
	RefreshInterval time.Duration
	DefaultTag      string
}

// InfluxConfig configures the InfluxDB metrics sink.
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// APIConfig configures the results server.
type APIConfig struct {
	ServerURL        string
	APIKey           string
	UploadOnConclude bool
}

// GraylogConfig configures GELF log shipping.
type GraylogConfig struct {
	Enabled bool
	Address string
	// Level is the minimum level shipped; it never lowers logLevel.
	Level string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A .env file in the
// same directory is loaded into the environment first; variables that are
// already set win.
func Load(configDir string) error {
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./racelogs")

	viper.SetDefault("race.authority", true)
	viper.SetDefault("race.policy", "all-finished")
	viper.SetDefault("race.finishMode", "trigger")
	viper.SetDefault("race.finishRadius", 8.0)
	viper.SetDefault("race.refreshInterval", "200ms")
	viper.SetDefault("race.defaultTag", "Race")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.uploadOnConclude", false)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "racetrack")
	viper.SetDefault("db.sslMode", "disable")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./results")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dir", "./results")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/race/stream")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "racetrack")
	viper.SetDefault("influx.bucket", "race-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
	viper.SetDefault("graylog.level", "warn")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "racetrack")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: strings.ToLower(viper.GetString("storage.type")),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			Dir:          viper.GetString("storage.sqlite.dir"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
			SSLMode:  viper.GetString("db.sslMode"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetRaceConfig returns the race engine settings.
func GetRaceConfig() RaceConfig {
	return RaceConfig{
		Authority:       viper.GetBool("race.authority"),
		Policy:          viper.GetString("race.policy"),
		FinishMode:      viper.GetString("race.finishMode"),
		FinishRadius:    viper.GetFloat64("race.finishRadius"),
		RefreshInterval: viper.GetDuration("race.refreshInterval"),
		DefaultTag:      viper.GetString("race.defaultTag"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetAPIConfig returns the results server settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL:        viper.GetString("api.serverUrl"),
		APIKey:           viper.GetString("api.apiKey"),
		UploadOnConclude: viper.GetBool("api.uploadOnConclude"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
		Level:   viper.GetString("graylog.level"),
	}
}
