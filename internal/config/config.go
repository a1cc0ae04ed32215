package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the tic-tac-toe coordinator.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)

	// Lobby tuning
	MaxNameLen int `yaml:"max_name_len"`

	// IdleQueueTimeoutSeconds bounds how long a PLAY'd session sits in the
	// pairing queue before the lobby gives up on finding it an opponent.
	// Zero disables the timeout.
	IdleQueueTimeoutSeconds int `yaml:"idle_queue_timeout_seconds"`

	// ShutdownGraceSeconds is how long Run lets in-flight sessions drain
	// after ctx is cancelled before force-closing the ones still open.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds"`
}

// DefaultServer returns a Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		BindAddress:             "0.0.0.0",
		Port:                    2323,
		LogLevel:                "info",
		MaxNameLen:              50,
		IdleQueueTimeoutSeconds: 0,
		ShutdownGraceSeconds:    5,
	}
}

// LoadServer loads server config from a YAML file. If the file doesn't
// exist, returns defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
