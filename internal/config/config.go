package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "WATCHER"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	WSURL             string
	Store             string
	TargetsFile       string
	EventsFile        string
	PGDSN             string
	AbiDir            string
	ExplorerURL       string
	ExplorerAPIKey    string
	RecentSize        int
	SnapshotInterval  time.Duration
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	ReconnectPolicy   string
	ProcessYield      time.Duration
	ValueThreshold    string
	ArchiveFile       string
	Listen            string
	CORSOrigins       []string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		WSURL:             v.GetString("ws-url"),
		Store:             strings.ToLower(v.GetString("store")),
		TargetsFile:       v.GetString("targets-file"),
		EventsFile:        v.GetString("events-file"),
		PGDSN:             v.GetString("pg-dsn"),
		AbiDir:            v.GetString("abi-dir"),
		ExplorerURL:       v.GetString("explorer-url"),
		ExplorerAPIKey:    v.GetString("explorer-api-key"),
		RecentSize:        v.GetInt("recent-size"),
		SnapshotInterval:  v.GetDuration("snapshot-interval"),
		ReconnectDelay:    v.GetDuration("reconnect-delay"),
		ReconnectMaxDelay: v.GetDuration("reconnect-max-delay"),
		ReconnectPolicy:   strings.ToLower(v.GetString("reconnect-policy")),
		ProcessYield:      v.GetDuration("process-yield"),
		ValueThreshold:    v.GetString("value-threshold"),
		ArchiveFile:       v.GetString("archive-file"),
		Listen:            v.GetString("listen"),
		CORSOrigins:       getStringSlice(v, "cors-origins"),
		LogLevel:          v.GetString("log-level"),
	}

	switch cfg.Store {
	case "file", "postgres":
	default:
		return Config{}, fmt.Errorf("unknown store %q (want file or postgres)", cfg.Store)
	}
	if cfg.Store == "postgres" && cfg.PGDSN == "" {
		return Config{}, fmt.Errorf("pg-dsn is required when store is postgres")
	}

	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", "file")
	v.SetDefault("targets-file", "./data/contracts.json")
	v.SetDefault("events-file", "./data/recent_events.json")
	v.SetDefault("abi-dir", "./data/abis")
	v.SetDefault("explorer-url", "https://api.basescan.org/api")
	v.SetDefault("recent-size", 100)
	v.SetDefault("snapshot-interval", 5*time.Second)
	v.SetDefault("reconnect-delay", 10*time.Second)
	v.SetDefault("reconnect-max-delay", 2*time.Minute)
	v.SetDefault("reconnect-policy", "exponential")
	v.SetDefault("process-yield", time.Duration(0))
	v.SetDefault("value-threshold", "0")
	v.SetDefault("archive-file", "./data/events.jsonl")
	v.SetDefault("listen", ":8000")
	v.SetDefault("cors-origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
