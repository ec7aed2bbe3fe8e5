package config

import "fmt"

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	// Validate source
	switch cfg.Source.Kind {
	case "device":
		if cfg.Source.Device < 0 {
			return fmt.Errorf("source.device must be >= 0")
		}
	case "stream":
		if cfg.Source.URL == "" {
			return fmt.Errorf("source.url is required for a stream source")
		}
	default:
		return fmt.Errorf("source.kind must be device or stream, got %q", cfg.Source.Kind)
	}
	if cfg.Source.ReconnectInterval <= 0 {
		return fmt.Errorf("source.reconnect_interval must be > 0")
	}
	if cfg.Source.MaxReconnects < 0 {
		return fmt.Errorf("source.max_reconnects must be >= 0")
	}

	// Validate pipeline
	if cfg.Pipeline.BufferCapacity < 1 {
		return fmt.Errorf("pipeline.buffer_capacity must be >= 1")
	}
	if cfg.Pipeline.ProcessEvery < 1 {
		cfg.Pipeline.ProcessEvery = 1 // default
	}

	// Validate matcher
	if cfg.Matcher.Threshold < -1 || cfg.Matcher.Threshold > 1 {
		return fmt.Errorf("matcher.threshold must be within [-1, 1], got %v", cfg.Matcher.Threshold)
	}

	// Validate analyzer
	switch cfg.Analyzer.Backend {
	case "python", "dlib":
	default:
		return fmt.Errorf("analyzer.backend must be python or dlib, got %q", cfg.Analyzer.Backend)
	}

	// Validate MQTT payload format
	switch cfg.MQTT.Format {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("mqtt.format must be json or msgpack, got %q", cfg.MQTT.Format)
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	if cfg.LedgerPath == "" {
		return fmt.Errorf("ledger_path is required")
	}
	return nil
}
