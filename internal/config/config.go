package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	Database Database `mapstructure:"database"`
	AI       AI       `mapstructure:"ai"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Server   Server   `mapstructure:"server"`
}

// App contains general application settings
type App struct {
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	DataDir   string `mapstructure:"data_dir"`
}

// Database contains Comment Store settings
type Database struct {
	Path    string `mapstructure:"path"`
	Timeout string `mapstructure:"timeout"`
}

// AI contains provider credentials and per-role model settings
type AI struct {
	OpenAI     OpenAI `mapstructure:"openai"`
	Gemini     Gemini `mapstructure:"gemini"`
	Classifier Model  `mapstructure:"classifier"`
	Embedding  Model  `mapstructure:"embedding"`
	Narrative  Model  `mapstructure:"narrative"`
}

// OpenAI holds settings for any OpenAI-compatible endpoint (Groq by default)
type OpenAI struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// Gemini holds Google Gemini credentials
type Gemini struct {
	APIKey string `mapstructure:"api_key"`
}

// Model selects a provider and model for one role
type Model struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	StrictJSON  bool    `mapstructure:"strict_json"` // json_schema response format instead of json_object

	RequestsPerMinute int `mapstructure:"requests_per_minute"` // 0 disables the client-side cap
}

// Pipeline contains batch-run tuning
type Pipeline struct {
	ClassifyDelay      string `mapstructure:"classify_delay"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	ParseBackoff       string `mapstructure:"parse_backoff"`
	ErrorBackoff       string `mapstructure:"error_backoff"`
	CallTimeout        string `mapstructure:"call_timeout"`
	MinClusterSize     int    `mapstructure:"min_cluster_size"`
	ClusterMetric      string `mapstructure:"cluster_metric"`
	TopClusters        int    `mapstructure:"top_clusters"`
	ExamplesPerCluster int    `mapstructure:"examples_per_cluster"`
	NarrativeClusters  int    `mapstructure:"narrative_clusters"`
}

// Server contains HTTP API settings
type Server struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	ReadTimeout    string `mapstructure:"read_timeout"`
	WriteTimeout   string `mapstructure:"write_timeout"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	CORS           CORS   `mapstructure:"cors"`
}

// CORS contains cross-origin settings for the HTTP API
type CORS struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".commentlens")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the loaded configuration. Used by tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.log_format", "json")
	viper.SetDefault("app.data_dir", ".commentlens")

	viper.SetDefault("database.path", "")
	viper.SetDefault("database.timeout", "5s")

	viper.SetDefault("ai.openai.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("ai.classifier.provider", ProviderOpenAI)
	viper.SetDefault("ai.classifier.model", "meta-llama/llama-4-scout-17b-16e-instruct")
	viper.SetDefault("ai.classifier.temperature", 0.7)
	viper.SetDefault("ai.classifier.max_tokens", 256)
	viper.SetDefault("ai.classifier.strict_json", false)
	viper.SetDefault("ai.classifier.requests_per_minute", 30)
	viper.SetDefault("ai.embedding.provider", ProviderGemini)
	viper.SetDefault("ai.embedding.model", "text-embedding-004")
	viper.SetDefault("ai.narrative.provider", ProviderOpenAI)
	viper.SetDefault("ai.narrative.model", "")
	viper.SetDefault("ai.narrative.temperature", 0.7)
	viper.SetDefault("ai.narrative.max_tokens", 500)
	viper.SetDefault("ai.narrative.requests_per_minute", 30)

	viper.SetDefault("pipeline.classify_delay", "3s")
	viper.SetDefault("pipeline.max_attempts", 3)
	viper.SetDefault("pipeline.parse_backoff", "2s")
	viper.SetDefault("pipeline.error_backoff", "10s")
	viper.SetDefault("pipeline.call_timeout", "60s")
	viper.SetDefault("pipeline.min_cluster_size", 5)
	viper.SetDefault("pipeline.cluster_metric", "euclidean")
	viper.SetDefault("pipeline.top_clusters", 5)
	viper.SetDefault("pipeline.examples_per_cluster", 3)
	viper.SetDefault("pipeline.narrative_clusters", 3)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30m")
	viper.SetDefault("server.max_upload_bytes", 10<<20)
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})
}

// bindEnvironmentVariables maps conventional variable names onto config keys
func bindEnvironmentVariables() {
	bindEnvKeys("ai.openai.api_key", []string{"GROQ_API_KEY", "OPENAI_API_KEY"})
	bindEnvKeys("ai.openai.base_url", []string{"OPENAI_BASE_URL"})
	bindEnvKeys("ai.gemini.api_key", []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"})
	bindEnvKeys("ai.classifier.model", []string{"GROQ_MODEL_NAME"})
	bindEnvKeys("database.path", []string{"COMMENTLENS_DB"})
	bindEnvKeys("app.log_level", []string{"LOG_LEVEL"})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Database.Path == "" {
		config.Database.Path = filepath.Join(config.App.DataDir, "comments.db")
	} else {
		config.Database.Path = expandPath(config.Database.Path)
	}
	if config.AI.Narrative.Model == "" {
		switch {
		case config.AI.Narrative.Provider == config.AI.Classifier.Provider:
			config.AI.Narrative.Model = config.AI.Classifier.Model
		case config.AI.Narrative.Provider == ProviderGemini:
			config.AI.Narrative.Model = "gemini-2.0-flash"
		}
	}

	durations := map[string]string{
		"database.timeout":        config.Database.Timeout,
		"pipeline.classify_delay": config.Pipeline.ClassifyDelay,
		"pipeline.parse_backoff":  config.Pipeline.ParseBackoff,
		"pipeline.error_backoff":  config.Pipeline.ErrorBackoff,
		"pipeline.call_timeout":   config.Pipeline.CallTimeout,
		"server.read_timeout":     config.Server.ReadTimeout,
		"server.write_timeout":    config.Server.WriteTimeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig checks structural settings. API keys are checked lazily by
// RequireAI so read-only commands work without credentials.
func validateConfig(config *Config) error {
	var errors []string

	roles := map[string]string{
		"ai.classifier.provider": config.AI.Classifier.Provider,
		"ai.embedding.provider":  config.AI.Embedding.Provider,
		"ai.narrative.provider":  config.AI.Narrative.Provider,
	}
	for key, provider := range roles {
		if provider != ProviderOpenAI && provider != ProviderGemini {
			errors = append(errors, fmt.Sprintf("Unknown provider for %s: %q. Supported: openai, gemini", key, provider))
		}
	}

	if config.Pipeline.MaxAttempts < 1 {
		errors = append(errors, "pipeline.max_attempts must be at least 1")
	}
	if config.Pipeline.MinClusterSize < 2 {
		errors = append(errors, "pipeline.min_cluster_size must be at least 2")
	}
	if config.Pipeline.TopClusters < 1 {
		errors = append(errors, "pipeline.top_clusters must be at least 1")
	}
	if config.Pipeline.ExamplesPerCluster < 1 {
		errors = append(errors, "pipeline.examples_per_cluster must be at least 1")
	}
	switch config.Pipeline.ClusterMetric {
	case "euclidean", "cosine":
	default:
		errors = append(errors, fmt.Sprintf("Unknown cluster metric: %q. Supported: euclidean, cosine", config.Pipeline.ClusterMetric))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// RequireAI verifies that every provider used by the pipeline has a usable key
func (c *Config) RequireAI() error {
	var errors []string
	for _, role := range []Model{c.AI.Classifier, c.AI.Embedding, c.AI.Narrative} {
		switch role.Provider {
		case ProviderOpenAI:
			if !isValidAPIKey(c.AI.OpenAI.APIKey) {
				errors = append(errors, "OpenAI-compatible API key is required. Set GROQ_API_KEY or OPENAI_API_KEY, or ai.openai.api_key in config file.")
			}
		case ProviderGemini:
			if !isValidAPIKey(c.AI.Gemini.APIKey) {
				errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.")
			}
		}
	}

	errors = dedupe(errors)
	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Duration parses an already validated duration setting, falling back to def
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// Convenience getters for commonly used configuration values
func GetApp() App           { return Get().App }
func GetDatabase() Database { return Get().Database }
func GetAI() AI             { return Get().AI }
func GetPipeline() Pipeline { return Get().Pipeline }
func GetServer() Server     { return Get().Server }
func IsDebugMode() bool     { return Get().App.Debug }

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-groq-key", "your-openai-key", "your-gemini-key",
		"YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
