package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ctaggregate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Plateau     PlateauConfig     `yaml:"plateau"`
	Accuracy    AccuracyConfig    `yaml:"accuracy"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig contains SQLite store settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// AggregationConfig controls discovery and analysis of sorted measurement files.
type AggregationConfig struct {
	// SearchDir is walked recursively for sorted files.
	SearchDir string `yaml:"search_dir"`

	// FileSuffix identifies sorted files and is stripped before name parsing.
	FileSuffix string `yaml:"file_suffix"`

	// Concurrency bounds the number of files analysed in parallel.
	Concurrency int `yaml:"concurrency"`

	Levels []int    `yaml:"levels"`
	Phases []string `yaml:"phases"`

	// ReferenceKeywords are tried in order; the first keyword found in any
	// device name selects the reference channel.
	ReferenceKeywords []string `yaml:"reference_keywords"`

	// PlaceholderNames are generic device names rewritten per manufacturer.
	PlaceholderNames []string `yaml:"placeholder_names"`

	// Manufacturers are matched in order as case-insensitive substrings.
	Manufacturers        []ManufacturerRule `yaml:"manufacturers"`
	FallbackManufacturer string             `yaml:"fallback_manufacturer"`

	// NominalRefName is written as ref_name on nominal_ref records.
	NominalRefName string `yaml:"nominal_ref_name"`

	// SidecarFields are the operator-maintained columns kept per base type.
	SidecarFields []SidecarField `yaml:"sidecar_fields"`
}

// ManufacturerRule maps a file name token to a manufacturer name.
type ManufacturerRule struct {
	Match string `yaml:"match"`
	Name  string `yaml:"name"`
}

// SidecarField declares one operator-maintained column.
type SidecarField struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "number" or "text"
}

// PlateauConfig controls slicing of raw exports into sorted files.
type PlateauConfig struct {
	RawDir       string  `yaml:"raw_dir"`
	OutputDir    string  `yaml:"output_dir"`
	RangesFile   string  `yaml:"ranges_file"`
	Duration     int     `yaml:"duration"`
	TolerancePct float64 `yaml:"tolerance_pct"`
	MinSamples   int     `yaml:"min_samples"`
}

// AccuracyConfig selects the accuracy class used when evaluating records.
type AccuracyConfig struct {
	Class float64 `yaml:"class"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the dashboard push channel.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"` // seconds
	PongTimeout    int `yaml:"pong_timeout"`  // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Sidecar field kinds.
const (
	FieldKindNumber = "number"
	FieldKindText   = "text"
)

// maxLevel bounds configured load levels (percent of rated current).
const maxLevel = 200

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CTAGG_SECTION_KEY
// For example: CTAGG_DATABASE_PATH, CTAGG_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the defaults used by the measurement lab.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./daten/messdaten.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Aggregation: AggregationConfig{
			SearchDir:         "messungen_sortiert",
			FileSuffix:        "_sortiert.csv",
			Concurrency:       4,
			Levels:            []int{5, 20, 50, 80, 90, 100, 120},
			Phases:            []string{"L1", "L2", "L3"},
			ReferenceKeywords: []string{"pac1", "einspeisung", "ref", "source", "norm", "powermeter"},
			PlaceholderNames:  []string{"pruefling", "prüfling", "dut", "messwandler"},
			Manufacturers: []ManufacturerRule{
				{Match: "messstrecke", Name: "Messstrecke"},
				{Match: "mbs", Name: "MBS"},
				{Match: "celsa", Name: "Celsa"},
				{Match: "redur", Name: "Redur"},
			},
			FallbackManufacturer: "Andere",
			NominalRefName:       "Nennwert",
			SidecarFields: []SidecarField{
				{Name: "price_eur", Kind: FieldKindNumber},
				{Name: "rated_burden_va", Kind: FieldKindNumber},
				{Name: "depth_mm", Kind: FieldKindNumber},
				{Name: "width_mm", Kind: FieldKindNumber},
				{Name: "height_mm", Kind: FieldKindNumber},
				{Name: "comment", Kind: FieldKindText},
			},
		},
		Plateau: PlateauConfig{
			RawDir:       "messungen",
			OutputDir:    "messungen_sortiert",
			RangesFile:   "saved_configs.json",
			TolerancePct: 3.0,
			MinSamples:   10,
		},
		Accuracy: AccuracyConfig{
			Class: 0.5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ctaggregate",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "ctagg",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 120,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CTAGG_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CTAGG_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("CTAGG_SEARCH_DIR"); v != "" {
		cfg.Aggregation.SearchDir = v
	}
	if v := os.Getenv("CTAGG_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Aggregation.Concurrency = n
		}
	}

	if v := os.Getenv("CTAGG_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CTAGG_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CTAGG_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("CTAGG_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("CTAGG_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CTAGG_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}

	if v := os.Getenv("CTAGG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	errs = append(errs, c.Aggregation.validate()...)

	if c.Plateau.TolerancePct < 0 {
		errs = append(errs, "plateau.tolerance_pct must not be negative")
	}
	if c.Plateau.Duration < 0 {
		errs = append(errs, "plateau.duration must not be negative")
	}

	if !SupportedClass(c.Accuracy.Class) {
		errs = append(errs, "accuracy.class must be one of 0.2, 0.5, 1, 3")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (a AggregationConfig) validate() []string {
	var errs []string

	if a.Concurrency < 1 {
		errs = append(errs, "aggregation.concurrency must be at least 1")
	}
	if len(a.Levels) == 0 {
		errs = append(errs, "aggregation.levels must not be empty")
	}
	for _, lvl := range a.Levels {
		if lvl < 1 || lvl > maxLevel {
			errs = append(errs, fmt.Sprintf("aggregation.levels: %d is outside 1..%d", lvl, maxLevel))
		}
	}
	if len(a.Phases) == 0 {
		errs = append(errs, "aggregation.phases must not be empty")
	}
	for _, m := range a.Manufacturers {
		if m.Match == "" || m.Name == "" {
			errs = append(errs, "aggregation.manufacturers entries need match and name")
			break
		}
	}
	if a.FallbackManufacturer == "" {
		errs = append(errs, "aggregation.fallback_manufacturer is required")
	}

	seen := make(map[string]bool, len(a.SidecarFields))
	for _, f := range a.SidecarFields {
		if f.Name == "" {
			errs = append(errs, "aggregation.sidecar_fields: name is required")
			continue
		}
		if !columnName.MatchString(f.Name) {
			errs = append(errs, fmt.Sprintf("aggregation.sidecar_fields: field %q is not a valid column name", f.Name))
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Sprintf("aggregation.sidecar_fields: duplicate field %q", f.Name))
		}
		seen[f.Name] = true
		if f.Kind != FieldKindNumber && f.Kind != FieldKindText {
			errs = append(errs, fmt.Sprintf("aggregation.sidecar_fields: field %q has invalid kind %q", f.Name, f.Kind))
		}
	}

	return errs
}

// columnName matches sidecar field names; each field is stored as its own column.
var columnName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SupportedClass reports whether class is an accuracy class with known limits.
func SupportedClass(class float64) bool {
	switch class {
	case 0.2, 0.5, 1, 3:
		return true
	default:
		return false
	}
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
