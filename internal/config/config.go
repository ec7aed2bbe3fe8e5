package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when --config is not given and the file exists.
const DefaultPath = "rollcall.yaml"

// Config represents the complete rollcall configuration
type Config struct {
	Listen        string         `yaml:"listen"`
	KnownFacesDir string         `yaml:"known_faces_dir"`
	LedgerPath    string         `yaml:"ledger_path"`
	Source        SourceConfig   `yaml:"source"`
	Pipeline      PipelineConfig `yaml:"pipeline"`
	Matcher       MatcherConfig  `yaml:"matcher"`
	Analyzer      AnalyzerConfig `yaml:"analyzer"`
	Database      DatabaseConfig `yaml:"database"`
	MQTT          MQTTConfig     `yaml:"mqtt"`
	Labels        LabelsConfig   `yaml:"labels"`
}

// SourceConfig selects the camera or stream
type SourceConfig struct {
	Kind              string        `yaml:"kind"`   // device, stream
	Device            int           `yaml:"device"` // /dev/video<N>
	URL               string        `yaml:"url"`
	BufferSize        int           `yaml:"buffer_size"`
	FPS               int           `yaml:"fps"`
	Width             int           `yaml:"width"`
	Height            int           `yaml:"height"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxReconnects     int           `yaml:"max_reconnects"` // 0 retries forever
}

// PipelineConfig tunes the consumer loop
type PipelineConfig struct {
	BufferCapacity int           `yaml:"buffer_capacity"`
	PopTimeout     time.Duration `yaml:"pop_timeout"`
	ProcessEvery   int           `yaml:"process_every"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
	RecordUnknown  bool          `yaml:"record_unknown"`
	Preview        bool          `yaml:"preview"`
}

// MatcherConfig holds the similarity threshold
type MatcherConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// AnalyzerConfig selects the face backend
type AnalyzerConfig struct {
	Backend   string        `yaml:"backend"` // python, dlib
	Python    string        `yaml:"python"`
	Script    string        `yaml:"script"`
	Model     string        `yaml:"model"`
	DetSize   int           `yaml:"det_size"`
	ModelsDir string        `yaml:"models_dir"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DatabaseConfig enables the Postgres mirror when URL is set
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MQTTConfig enables the MQTT publisher when Broker is set
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Format   string `yaml:"format"` // json, msgpack
	QoS      byte   `yaml:"qos"`
}

// LabelsConfig configures the label OCR tool
type LabelsConfig struct {
	APIKeyEnv  string `yaml:"api_key_env"`
	Model      string `yaml:"model"`
	Workbook   string `yaml:"workbook"`
	SpareParts string `yaml:"spare_parts"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:        ":5500",
		KnownFacesDir: "input_images",
		LedgerPath:    "recognized_faces.csv",
		Source: SourceConfig{
			Kind:              "device",
			BufferSize:        3,
			FPS:               15,
			Width:             640,
			Height:            480,
			ReconnectInterval: 2 * time.Second,
		},
		Pipeline: PipelineConfig{
			BufferCapacity: 10,
			PopTimeout:     100 * time.Millisecond,
			ProcessEvery:   1,
			StopTimeout:    5 * time.Second,
			RecordUnknown:  true,
		},
		Matcher: MatcherConfig{Threshold: 0.5},
		Analyzer: AnalyzerConfig{
			Backend: "python",
			Python:  "python3",
			Script:  "python/analyzer.py",
			Model:   "buffalo_l",
			DetSize: 640,
			Timeout: 30 * time.Second,
		},
		MQTT: MQTTConfig{
			Topic:    "rollcall/attendance",
			ClientID: "rollcall",
			Format:   "json",
			QoS:      1,
		},
		Labels: LabelsConfig{
			APIKeyEnv:  "GOOGLE_API_KEY",
			Model:      "gemini-2.5-flash",
			Workbook:   "labels_extended.xlsx",
			SpareParts: "spare_parts.xlsx",
		},
	}
}

// Load reads a YAML file on top of the defaults.
// An empty path loads DefaultPath if it exists and plain defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv fills connection settings from the environment when the file left them empty.
func (c *Config) ApplyEnv() {
	if c.Database.URL == "" {
		if host := os.Getenv("POSTGRES_HOST"); host != "" {
			user := os.Getenv("POSTGRES_USER")
			pass := os.Getenv("POSTGRES_PASSWORD")
			name := os.Getenv("POSTGRES_DB")
			port := os.Getenv("POSTGRES_PORT")
			if port == "" {
				port = "5432"
			}
			c.Database.URL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
		}
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = os.Getenv("MQTT_BROKER")
	}
}
