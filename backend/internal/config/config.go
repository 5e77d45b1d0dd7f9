// Package config loads eduops settings from defaults, an optional YAML
// file, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EDUOPS_DATA_API.
const EnvPrefix = "EDUOPS"

// Config holds the application configuration.
type Config struct {
	ConfigFile string

	Data   DataConfig
	Output OutputConfig
	Key    KeyConfig
	Charts ChartsConfig
	Static string
	Server ServerConfig
	LLM    LLMConfig
	Log    LogConfig
}

// DataConfig lists the input CSV files.
type DataConfig struct {
	API    string // school-level api export
	KESS   string // KESS statistics
	Infra  string // school digital infrastructure
	Tech   string // regional computer counts per year
	Region string // regional laptop usage
	Total  string // regional totals mixed with school-type rows
}

// OutputConfig lists the files the commands write.
type OutputConfig struct {
	CSV     string
	XLSX    string
	Summary string
}

// KeyConfig names the join column and the aliases renamed to it.
type KeyConfig struct {
	Column  string
	Aliases []string
}

// ChartsConfig places the rendered charts.
type ChartsConfig struct {
	Dir  string
	Year string
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr    string
	Origins []string
}

// LLMConfig configures the model behind chat and summaries.
type LLMConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	APIKey      string
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit YAML file; when empty .eduops.yaml is searched
	// in the working directory and the home directory.
	ConfigFile string

	// EnvFiles are loaded before the environment is read. Later files do not
	// override variables already set.
	EnvFiles []string
}

// DefaultEnvFiles are the .env files read by default.
var DefaultEnvFiles = []string{".env.local", ".env"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.api", "data/education_data_20250331.csv")
	v.SetDefault("data.kess", "data/kess_stats_20250331.csv")
	v.SetDefault("data.infra", "data/school_digital_infra.csv")
	v.SetDefault("data.tech", "data/tech_region.csv")
	v.SetDefault("data.region", "data/region_laptop.csv")
	v.SetDefault("data.total", "data/total_region.csv")

	v.SetDefault("output.csv", "data/integrated_education_data.csv")
	v.SetDefault("output.xlsx", "")
	v.SetDefault("output.summary", "data/region_laptop_summary.csv")

	v.SetDefault("key.column", "school_code")
	v.SetDefault("key.aliases", []string{"schoolCode", "학교코드"})

	v.SetDefault("charts.dir", "static/data/digital_resources")
	v.SetDefault("charts.year", "2023")
	v.SetDefault("static.dir", "static")

	v.SetDefault("server.addr", ":5006")
	v.SetDefault("server.origins", []string{"*"})

	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")
}

// Load builds a Config in order of precedence: environment, .env files,
// config file, defaults. A missing default config file is not an error; a
// missing explicit one is.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = DefaultEnvFiles
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(".eduops")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		ConfigFile: v.ConfigFileUsed(),
		Data: DataConfig{
			API:    v.GetString("data.api"),
			KESS:   v.GetString("data.kess"),
			Infra:  v.GetString("data.infra"),
			Tech:   v.GetString("data.tech"),
			Region: v.GetString("data.region"),
			Total:  v.GetString("data.total"),
		},
		Output: OutputConfig{
			CSV:     v.GetString("output.csv"),
			XLSX:    v.GetString("output.xlsx"),
			Summary: v.GetString("output.summary"),
		},
		Key: KeyConfig{
			Column:  v.GetString("key.column"),
			Aliases: v.GetStringSlice("key.aliases"),
		},
		Charts: ChartsConfig{
			Dir:  v.GetString("charts.dir"),
			Year: v.GetString("charts.year"),
		},
		Static: v.GetString("static.dir"),
		Server: ServerConfig{
			Addr:    v.GetString("server.addr"),
			Origins: v.GetStringSlice("server.origins"),
		},
		LLM: LLMConfig{
			Model:       v.GetString("llm.model"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			Temperature: v.GetFloat64("llm.temperature"),
			APIKey:      firstEnv(EnvPrefix+"_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", v.GetString("log.level")),
			Format: envOr("LOG_FORMAT", v.GetString("log.format")),
			Output: envOr("LOG_OUTPUT", v.GetString("log.output")),
		},
	}
	return cfg, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
