// Package config loads the refdata configuration.
//
// The configuration lives in a YAML file named refdata.yaml, found by
// walking up from the working directory unless a path is given. Every key
// can be overridden from the environment with the REFDATA_ prefix, dots
// becoming underscores: storage.backend is REFDATA_STORAGE_BACKEND.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/mitchellh/mapstructure"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/attrmap"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	FileName  = "refdata.yaml"
	EnvPrefix = "REFDATA"

	defaultExtension = "yaml"
	defaultTagName   = "yaml"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	Storage   Storage        `yaml:"storage"`
	Mapping   attrmap.Config `yaml:"mapping"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
}

type Storage struct {
	Backend string `yaml:"backend"`
	// BasePath is the directory of the file backend.
	BasePath string   `yaml:"base_path"`
	Badger   Badger   `yaml:"badger"`
	DynamoDB DynamoDB `yaml:"dynamodb"`
}

type Badger struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	// MemTableSize bounds how many rows one save may change. Zero keeps
	// badger's default.
	MemTableSize int64 `yaml:"mem_table_size"`
}

type DynamoDB struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string `yaml:"endpoint"`
}

func Default() Config {
	return Config{
		Storage: Storage{
			Backend:  BackendFile,
			BasePath: "data",
			Badger:   Badger{Path: "data/badger"},
			DynamoDB: DynamoDB{Table: "ReferenceTables"},
		},
		Mapping:   attrmap.DefaultConfig(),
		LogLevel:  "info",
		LogFormat: "console",
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Storage),
		validation.Field(&c.Mapping),
		validation.Field(&c.LogLevel, validation.Required, validation.In("trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled")),
		validation.Field(&c.LogFormat, validation.Required, validation.In("console", "json")),
	)
}

func (s Storage) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required, validation.In(BackendMemory, BackendFile, BackendBadger, BackendDynamoDB)),
		validation.Field(&s.BasePath, validation.When(s.Backend == BackendFile, validation.Required)),
		validation.Field(&s.Badger, validation.When(s.Backend == BackendBadger, validation.By(func(any) error {
			return s.Badger.validate()
		}))),
		validation.Field(&s.DynamoDB, validation.When(s.Backend == BackendDynamoDB, validation.By(func(any) error {
			return s.DynamoDB.validate()
		}))),
	)
}

func (b Badger) validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Path, validation.When(!b.InMemory, validation.Required)),
		validation.Field(&b.MemTableSize, validation.Min(int64(0))),
	)
}

func (d DynamoDB) validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Table, validation.Required),
		validation.Field(&d.Endpoint, is.URL),
	)
}

// Load reads the configuration from path, or from the discovered
// refdata.yaml when path is empty. Without a file the defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType(defaultExtension)
	if err := setDefaults(v, Default()); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = Discover()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = defaultTagName
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key of def, so that environment overrides
// apply even to keys the file leaves out.
func setDefaults(v *viper.Viper, def Config) error {
	raw, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
	return nil
}

// Discover returns the path of the nearest refdata.yaml in the working
// directory or one of its parents, or "" when there is none.
func Discover() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return discoverFrom(dir)
}

func discoverFrom(dir string) string {
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Write stores c as YAML at path. An existing file is only replaced when
// overwrite is set.
func (c Config) Write(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("write config: %w: %s", errs.ErrAlreadyExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("write config: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
