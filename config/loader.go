package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HARVEST_BASE_URL.
const EnvPrefix = "HARVEST"

// Load reads configuration from defaults, an optional YAML file, HARVEST_*
// environment variables and flags, in increasing order of priority.
// Flags are matched to keys by replacing dashes with underscores.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("harvester")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".harvester"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing file only matters when it was asked for explicitly.
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("base_url", cfg.BaseURL)
	v.SetDefault("profile_path", cfg.ProfilePath)
	v.SetDefault("wishlist_path", cfg.WishlistPath)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("review_page_delay", cfg.ReviewPageDelay)
	v.SetDefault("max_review_pages", cfg.MaxReviewPages)
	v.SetDefault("dedupe_max_size", cfg.DedupeMaxSize)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("accept_language", cfg.AcceptLanguage)
	v.SetDefault("store", cfg.StoreType)
	v.SetDefault("postgres_dsn", cfg.PostgresDSN)
	v.SetDefault("mongo_uri", cfg.MongoURI)
	v.SetDefault("mongo_database", cfg.MongoDatabase)
	v.SetDefault("export_file", cfg.ExportFile)
	v.SetDefault("export_format", cfg.ExportFormat)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("verbose", cfg.Verbose)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	known := make(map[string]struct{})
	for _, key := range v.AllKeys() {
		known[key] = struct{}{}
	}

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, ok := known[key]; !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %q: %w", f.Name, err)
		}
	})
	return bindErr
}
