package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/campushub/studyhub/globals"
)

const (
	defaultAddr      = "localhost:8000"
	defaultTokenTTL  = 24 * time.Hour
	defaultUploadDir = "uploads"
	defaultSweepSpec = "0 3 * * *"
)

// Config is the global configuration object which is filled via the
// configuration file, environment variables and command-line flags.
type Config struct {
	ServerConfig      ServerConfig      `mapstructure:"server"`
	AuthConfig        AuthConfig        `mapstructure:"auth"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	UploadConfig      UploadConfig      `mapstructure:"uploads"`
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	LogLevel          string            `mapstructure:"log_level"`
}

type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	SSLCert string `mapstructure:"ssl_cert"`
	SSLKey  string `mapstructure:"ssl_key"`
}

// AuthConfig configures the token signing secret and lifetime, plus any
// optional OpenID Connect providers that may be exchanged for a local token.
type AuthConfig struct {
	Secret      string        `mapstructure:"secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	OIDCConfigs []OIDCConfig  `mapstructure:"oidc"`
}

// An OIDCConfig object configures an OpenID Connect provider. Users provide
// an ID token and the name of the provider, the authentication is then
// performed via verification of the token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"` // f.e. "https://accounts.google.com"
}

// PersistenceConfig selects the storage backend. Type is one of "sqlite",
// "postgres" or "buntdb"; DSN is the driver-specific connection string
// (a file path for sqlite and buntdb).
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// UploadConfig configures the file relay: the root directory all stored
// files live under, the maximum accepted upload size and the cron spec of
// the orphaned-file sweep.
type UploadConfig struct {
	Dir          string `mapstructure:"dir"`
	MaxSizeBytes int64  `mapstructure:"max_size_bytes"`
	SweepSpec    string `mapstructure:"sweep_spec"`
}

// HistoryConfig configures the size of the in-memory per-room message
// history kept by the hub.
type HistoryConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (trace, debug, info, warn, error)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("server.addr", defaultAddr)
	viper.SetDefault("auth.token_ttl", defaultTokenTTL)
	viper.SetDefault("uploads.dir", defaultUploadDir)
	viper.SetDefault("uploads.sweep_spec", defaultSweepSpec)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("STUDYHUB")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}
