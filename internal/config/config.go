// Package config loads navigator.cfg.json through viper and exposes typed views
// of each section.
package config

import (
	"fmt"
	"time"

	"github.com/pathnav/navigator/internal/attitude"
	"github.com/pathnav/navigator/internal/pid"
	"github.com/pathnav/navigator/internal/sim"
	"github.com/pathnav/navigator/internal/thrust"
	"github.com/pathnav/navigator/internal/tick"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "navigator.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the sqlite flight log settings.
type SQLiteConfig struct {
	// Path of the database file. ":memory:" keeps it in memory.
	Path string `json:"path" mapstructure:"path"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// InfluxConfig holds InfluxDB v2 settings.
type InfluxConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server URL built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// WebSocketConfig holds the live stream settings.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the flight log backend.
type StorageConfig struct {
	Type string `json:"type" mapstructure:"type"`
	// FrameEvery samples one tracking frame per this many navigator ticks.
	FrameEvery int             `json:"frameEvery" mapstructure:"frameEvery"`
	Memory     MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite     SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres   DBConfig        `json:"db" mapstructure:"db"`
	Influx     InfluxConfig    `json:"influx" mapstructure:"influx"`
	WebSocket  WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	// LogLevel is handed to the zerolog loggers of the database and influx managers.
	LogLevel string `json:"-" mapstructure:"-"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
	Metrics        bool          `json:"metrics" mapstructure:"metrics"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
}

// APIConfig holds the flight viewer upload settings.
type APIConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
	// Upload sends the exported flight log when the session ends.
	Upload bool   `json:"upload" mapstructure:"upload"`
	Tag    string `json:"tag" mapstructure:"tag"`
}

// MonitorConfig holds the status file settings. Every is in scheduler ticks.
type MonitorConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
	Every   int    `json:"every" mapstructure:"every"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("tickRate", "fast")

	for _, axis := range []string{"pitch", "yaw", "roll"} {
		def := pid.DefaultConfig()
		viper.SetDefault("attitude."+axis+".kp", def.Kp)
		viper.SetDefault("attitude."+axis+".ki", def.Ki)
		viper.SetDefault("attitude."+axis+".kd", def.Kd)
		viper.SetDefault("attitude."+axis+".min", def.Min)
		viper.SetDefault("attitude."+axis+".max", def.Max)
		viper.SetDefault("attitude."+axis+".integralLimit", def.IntegralLimit)
	}

	thr := thrust.DefaultConfig()
	viper.SetDefault("thrust.kp", thr.Kp)
	viper.SetDefault("thrust.maxForce", thr.MaxForce)

	vehicle := sim.DefaultConfig()
	viper.SetDefault("sim.vehicleName", vehicle.Name)
	viper.SetDefault("sim.mass", vehicle.Mass)
	viper.SetDefault("sim.gyros", vehicle.Gyros)
	viper.SetDefault("sim.maxThrust", vehicle.MaxThrust)
	viper.SetDefault("sim.maxRate", vehicle.MaxRate)
	viper.SetDefault("sim.rotationLag", vehicle.RotationLag)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.frameEvery", 10)
	viper.SetDefault("storage.memory.outputDir", "./flights")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./flights/navigator.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "navigator")
	viper.SetDefault("db.sslMode", "disable")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "navigator")
	viper.SetDefault("influx.bucket", "flights")

	viper.SetDefault("websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.upload", false)
	viper.SetDefault("api.tag", "")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.path", "./logs/status.json")
	viper.SetDefault("monitor.every", 60)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "navigator")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metrics", false)
	viper.SetDefault("otel.metricInterval", "1m")
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

// TickRate parses the configured tickRate. An unknown rate is an error, never a default.
func TickRate() (tick.Rate, error) {
	return tick.ParseRate(viper.GetString("tickRate"))
}

// AttitudeConfig returns the three PID configurations. A zero timestep is replaced
// with the seconds per tick of the configured rate.
func AttitudeConfig() (attitude.Config, error) {
	rate, err := TickRate()
	if err != nil {
		return attitude.Config{}, err
	}
	spt, err := rate.SecondsPerTick()
	if err != nil {
		return attitude.Config{}, err
	}

	return attitude.Config{
		Pitch: pidConfig("attitude.pitch", spt),
		Yaw:   pidConfig("attitude.yaw", spt),
		Roll:  pidConfig("attitude.roll", spt),
	}, nil
}

// pidConfig reads key by key so a partial section in the file keeps the defaults
// of the keys it leaves out.
func pidConfig(prefix string, spt float64) pid.Config {
	cfg := pid.Config{
		Kp:            viper.GetFloat64(prefix + ".kp"),
		Ki:            viper.GetFloat64(prefix + ".ki"),
		Kd:            viper.GetFloat64(prefix + ".kd"),
		Min:           viper.GetFloat64(prefix + ".min"),
		Max:           viper.GetFloat64(prefix + ".max"),
		IntegralLimit: viper.GetFloat64(prefix + ".integralLimit"),
		Timestep:      viper.GetFloat64(prefix + ".timestep"),
	}
	if cfg.Timestep <= 0 {
		cfg.Timestep = spt
	}
	return cfg
}

// ThrustConfig returns the propulsion controller settings.
func ThrustConfig() thrust.Config {
	return thrust.Config{
		Kp:       viper.GetFloat64("thrust.kp"),
		MaxForce: viper.GetFloat64("thrust.maxForce"),
	}
}

// SimConfig returns the simulated vehicle settings.
func SimConfig() sim.Config {
	return sim.Config{
		Name:        viper.GetString("sim.vehicleName"),
		Mass:        viper.GetFloat64("sim.mass"),
		Gyros:       viper.GetInt("sim.gyros"),
		MaxThrust:   viper.GetFloat64("sim.maxThrust"),
		MaxRate:     viper.GetFloat64("sim.maxRate"),
		RotationLag: viper.GetFloat64("sim.rotationLag"),
	}
}

// GetStorageConfig returns the flight log settings, including the connection
// sections for the SQL, influx and websocket backends.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:       viper.GetString("storage.type"),
		FrameEvery: viper.GetInt("storage.frameEvery"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		Postgres: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
			SSLMode:  viper.GetString("db.sslMode"),
		},
		Influx: InfluxConfig{
			Host:     viper.GetString("influx.host"),
			Port:     viper.GetString("influx.port"),
			Protocol: viper.GetString("influx.protocol"),
			Token:    viper.GetString("influx.token"),
			Org:      viper.GetString("influx.org"),
			Bucket:   viper.GetString("influx.bucket"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("websocket.url"),
			Secret: viper.GetString("websocket.secret"),
		},
		LogLevel: viper.GetString("logLevel"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
		Metrics:        viper.GetBool("otel.metrics"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// GetAPIConfig returns the upload settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Upload:    viper.GetBool("api.upload"),
		Tag:       viper.GetString("api.tag"),
	}
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled: viper.GetBool("monitor.enabled"),
		Path:    viper.GetString("monitor.path"),
		Every:   viper.GetInt("monitor.every"),
	}
}
