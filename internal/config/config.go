package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stickshift/trainer/internal/input"
	"github.com/stickshift/trainer/internal/vehicle"
)

// FileName is the config file looked up in the config directory.
const FileName = "trainer.cfg.json"

// EnvPrefix prefixes environment overrides: TRAINER_LOGLEVEL, TRAINER_DB_HOST, ...
const EnvPrefix = "TRAINER"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the in-memory sqlite backend settings.
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// WebSocketConfig points the live backend at the instructor server.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type      string // memory | sqlite | postgres | websocket
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// DBConfig is the postgres connection.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// DSN renders the connection string gorm's postgres driver expects.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// InfluxConfig configures the per-frame telemetry mirror.
type InfluxConfig struct {
	Enabled    bool
	Protocol   string
	Host       string
	Port       string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// URL is the server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

type GraylogConfig struct {
	Enabled  bool
	Address  string
	Facility string
}

// OTelConfig mirrors otel.Config minus the writer, which main provides.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

type APIConfig struct {
	ServerURL string
	APIKey    string
	Upload    bool
}

// GeoConfig is the WGS84 position of the training ground.
type GeoConfig struct {
	OriginLon float64
	OriginLat float64
}

// SessionConfig drives the tick loop and the recording worker.
type SessionConfig struct {
	TickRate      float64
	MaxFrameDt    float64
	RecordEvery   int
	FlushInterval time.Duration
	BatchSize     int
	QueueLimit    int
	Driver        string
}

type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	StatusFile string
}

// gear keys as they appear in the physics section
var gearKeys = map[vehicle.Gear]string{
	vehicle.Reverse: "r",
	vehicle.First:   "1",
	vehicle.Second:  "2",
	vehicle.Third:   "3",
	vehicle.Fourth:  "4",
	vehicle.Fifth:   "5",
}

// SetDefaults registers every default value. Load calls it; tests that skip
// the file can call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./trainerlogs")

	viper.SetDefault("session.tickRate", 60)
	viper.SetDefault("session.maxFrameDt", 0.25)
	viper.SetDefault("session.recordEvery", 1)
	viper.SetDefault("session.flushInterval", "1s")
	viper.SetDefault("session.batchSize", 600)
	viper.SetDefault("session.queueLimit", 36000)
	viper.SetDefault("session.driver", "")

	viper.SetDefault("tutorial.scriptFile", "")

	p := vehicle.DefaultParams()
	viper.SetDefault("physics.idleRpm", p.IdleRPM)
	viper.SetDefault("physics.maxRpm", p.MaxRPM)
	viper.SetDefault("physics.bandTopRpm", p.BandTopRPM)
	viper.SetDefault("physics.reverseRpmSpan", p.ReverseRPMSpan)
	viper.SetDefault("physics.throttleRpmFree", p.ThrottleRPMFree)
	viper.SetDefault("physics.throttleRpmLoaded", p.ThrottleRPMLoaded)
	viper.SetDefault("physics.engineLagRate", p.EngineLagRate)
	viper.SetDefault("physics.speedLagRate", p.SpeedLagRate)
	viper.SetDefault("physics.stallRpm", p.StallRPM)
	viper.SetDefault("physics.stallMaxSpeed", p.StallMaxSpeed)
	viper.SetDefault("physics.stallClutchBelow", p.StallClutchBelow)
	viper.SetDefault("physics.decoupleClutchAbove", p.DecoupleClutchAbove)
	viper.SetDefault("physics.commandClutchAbove", p.CommandClutchAbove)
	viper.SetDefault("physics.pedalMax", p.PedalMax)
	viper.SetDefault("physics.brakeDecelPerLevel", p.BrakeDecelPerLevel)
	viper.SetDefault("physics.handbrakeDecay", p.HandbrakeDecay)
	viper.SetDefault("physics.handbrakeSnap", p.HandbrakeSnap)
	viper.SetDefault("physics.coastDecay", p.CoastDecay)
	viper.SetDefault("physics.distanceScale", p.DistanceScale)
	viper.SetDefault("physics.steerRate", p.SteerRate)
	viper.SetDefault("physics.steerMinSpeed", p.SteerMinSpeed)
	viper.SetDefault("physics.lateralLimit", p.LateralLimit)
	for g, key := range gearKeys {
		viper.SetDefault("physics.topSpeed."+key, p.TopSpeed[g])
		if band, ok := p.OptimalBand[g]; ok {
			viper.SetDefault("physics.optimalBand."+key+".min", band.Min)
			viper.SetDefault("physics.optimalBand."+key+".max", band.Max)
		}
	}

	viper.SetDefault("bindings.pedals", map[string]string{})
	viper.SetDefault("bindings.actions", map[string]string{})

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/trainer.db")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "trainer")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "driving-school")
	viper.SetDefault("influx.bucket", "trainer_frames")
	viper.SetDefault("influx.backupPath", "./trainerlogs/influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
	viper.SetDefault("graylog.facility", "trainer")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "stickshift-trainer")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("api.serverUrl", "http://localhost:5000/api")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.upload", false)

	viper.SetDefault("geo.originLon", 2.2945)
	viper.SetDefault("geo.originLat", 48.8584)

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "./trainerlogs/status.txt")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Environment
// variables prefixed with TRAINER override file values.
func Load(configDir string) error {
	SetDefaults()

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

// GetPhysicsParams returns the vehicle tuning, validated.
func GetPhysicsParams() (vehicle.Params, error) {
	p := vehicle.DefaultParams()
	p.IdleRPM = viper.GetFloat64("physics.idleRpm")
	p.MaxRPM = viper.GetFloat64("physics.maxRpm")
	p.BandTopRPM = viper.GetFloat64("physics.bandTopRpm")
	p.ReverseRPMSpan = viper.GetFloat64("physics.reverseRpmSpan")
	p.ThrottleRPMFree = viper.GetFloat64("physics.throttleRpmFree")
	p.ThrottleRPMLoaded = viper.GetFloat64("physics.throttleRpmLoaded")
	p.EngineLagRate = viper.GetFloat64("physics.engineLagRate")
	p.SpeedLagRate = viper.GetFloat64("physics.speedLagRate")
	p.StallRPM = viper.GetFloat64("physics.stallRpm")
	p.StallMaxSpeed = viper.GetFloat64("physics.stallMaxSpeed")
	p.StallClutchBelow = viper.GetInt("physics.stallClutchBelow")
	p.DecoupleClutchAbove = viper.GetInt("physics.decoupleClutchAbove")
	p.CommandClutchAbove = viper.GetInt("physics.commandClutchAbove")
	p.PedalMax = viper.GetInt("physics.pedalMax")
	p.BrakeDecelPerLevel = viper.GetFloat64("physics.brakeDecelPerLevel")
	p.HandbrakeDecay = viper.GetFloat64("physics.handbrakeDecay")
	p.HandbrakeSnap = viper.GetFloat64("physics.handbrakeSnap")
	p.CoastDecay = viper.GetFloat64("physics.coastDecay")
	p.DistanceScale = viper.GetFloat64("physics.distanceScale")
	p.SteerRate = viper.GetFloat64("physics.steerRate")
	p.SteerMinSpeed = viper.GetFloat64("physics.steerMinSpeed")
	p.LateralLimit = viper.GetFloat64("physics.lateralLimit")

	p.TopSpeed = make(map[vehicle.Gear]float64, len(gearKeys))
	p.OptimalBand = make(map[vehicle.Gear]vehicle.RPMBand, len(gearKeys))
	for g, key := range gearKeys {
		p.TopSpeed[g] = viper.GetFloat64("physics.topSpeed." + key)
		if viper.IsSet("physics.optimalBand." + key + ".min") {
			p.OptimalBand[g] = vehicle.RPMBand{
				Min: viper.GetFloat64("physics.optimalBand." + key + ".min"),
				Max: viper.GetFloat64("physics.optimalBand." + key + ".max"),
			}
		}
	}

	if err := p.Validate(); err != nil {
		return vehicle.Params{}, fmt.Errorf("physics config: %w", err)
	}
	return p, nil
}

// GetBindings returns the default key layout with configured overrides.
func GetBindings() (input.Bindings, error) {
	b, err := input.ParseBindings(input.DefaultBindings(),
		viper.GetStringMapString("bindings.pedals"),
		viper.GetStringMapString("bindings.actions"))
	if err != nil {
		return input.Bindings{}, fmt.Errorf("bindings config: %w", err)
	}
	return b, nil
}

// GetStorageConfig returns storage configuration
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		WebSocket: webSocketConfig(),
	}
}

// webSocketConfig defaults to the live endpoint of the upload server and its
// api key.
func webSocketConfig() WebSocketConfig {
	c := WebSocketConfig{
		URL:    viper.GetString("storage.websocket.url"),
		Secret: viper.GetString("storage.websocket.secret"),
	}
	if c.URL == "" {
		if server := viper.GetString("api.serverUrl"); server != "" {
			c.URL = httpToWS(server) + "/live"
		}
	}
	if c.Secret == "" {
		c.Secret = viper.GetString("api.apiKey")
	}
	return c
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}

func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
		SSLMode:  viper.GetString("db.sslmode"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Protocol:   viper.GetString("influx.protocol"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled:  viper.GetBool("graylog.enabled"),
		Address:  viper.GetString("graylog.address"),
		Facility: viper.GetString("graylog.facility"),
	}
}

// GetOTelConfig returns OpenTelemetry configuration
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Upload:    viper.GetBool("api.upload"),
	}
}

func GetGeoConfig() GeoConfig {
	return GeoConfig{
		OriginLon: viper.GetFloat64("geo.originLon"),
		OriginLat: viper.GetFloat64("geo.originLat"),
	}
}

// GetSessionConfig returns tick loop and recording settings. Non-positive
// values fall back to safe minimums.
func GetSessionConfig() SessionConfig {
	c := SessionConfig{
		TickRate:      viper.GetFloat64("session.tickRate"),
		MaxFrameDt:    viper.GetFloat64("session.maxFrameDt"),
		RecordEvery:   viper.GetInt("session.recordEvery"),
		FlushInterval: viper.GetDuration("session.flushInterval"),
		BatchSize:     viper.GetInt("session.batchSize"),
		QueueLimit:    viper.GetInt("session.queueLimit"),
		Driver:        viper.GetString("session.driver"),
	}
	if c.TickRate <= 0 {
		c.TickRate = 60
	}
	if c.RecordEvery < 1 {
		c.RecordEvery = 1
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	return c
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}
