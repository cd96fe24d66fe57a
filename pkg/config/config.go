package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/opus/internal/persist"
	"github.com/jmgilman/go/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: OPUS_RAFT__ADDR sets raft.addr.
const EnvPrefix = "OPUS_"

type Config struct {
	NodeID      string            `koanf:"node_id"`
	GRPCAddr    string            `koanf:"grpc_addr"`
	HTTPAddr    string            `koanf:"http_addr"`
	UsersFile   string            `koanf:"users_file"`
	LogLevel    string            `koanf:"log_level"`
	Raft        RaftConfig        `koanf:"raft"`
	Persistence PersistenceConfig `koanf:"persistence"`
}

type RaftConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Addr      string `koanf:"addr"`
	Data      string `koanf:"data"`
	Bootstrap bool   `koanf:"bootstrap"`
}

type PersistenceConfig struct {
	Backend       string        `koanf:"backend"`
	Path          string        `koanf:"path"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// flagKeys maps server flag names onto config keys where the two differ.
var flagKeys = map[string]string{
	"raft":             "raft.enabled",
	"raft-addr":        "raft.addr",
	"raft-data":        "raft.data",
	"bootstrap":        "raft.bootstrap",
	"persistence":      "persistence.backend",
	"persistence-path": "persistence.path",
	"flush-interval":   "persistence.flush_interval",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"grpc_addr":                  ":5432",
		"http_addr":                  ":8080",
		"users_file":                 "users.yaml",
		"log_level":                  "info",
		"raft.enabled":               false,
		"raft.bootstrap":             false,
		"persistence.backend":        persist.KindNone,
		"persistence.flush_interval": "0s",
	}
}

// LoadConfig builds the configuration from, in increasing precedence:
// defaults, the YAML file at path (if path is set), OPUS_* environment
// variables and flags explicitly set on the command line.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "failed to read config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "unable to decode config")
	}

	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.Raft.Data == "" {
		cfg.Raft.Data = fmt.Sprintf("./opus/%s", cfg.NodeID)
	}
	cfg.Persistence.Backend = strings.ToLower(cfg.Persistence.Backend)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field combinations that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New(errors.CodeInvalidConfig, "grpc_addr is required")
	}
	if c.HTTPAddr == "" {
		return errors.New(errors.CodeInvalidConfig, "http_addr is required")
	}
	if c.Raft.Enabled && c.Raft.Addr == "" {
		return errors.New(errors.CodeInvalidConfig, "raft.addr is required when raft is enabled")
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return errors.Newf(errors.CodeInvalidConfig, "unknown log_level %q", c.LogLevel)
	}

	switch c.Persistence.Backend {
	case persist.KindNone, "":
	case persist.KindFS, persist.KindBolt, persist.KindSQLite:
		if c.Persistence.Path == "" {
			return errors.Newf(errors.CodeInvalidConfig, "persistence.path is required for the %s backend", c.Persistence.Backend)
		}
	default:
		return errors.Newf(errors.CodeInvalidConfig, "unknown persistence backend %q", c.Persistence.Backend)
	}
	if c.Persistence.FlushInterval < 0 {
		return errors.New(errors.CodeInvalidConfig, "persistence.flush_interval must not be negative")
	}
	return nil
}
