package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abelbrown/projector/internal/embed"
	"github.com/abelbrown/projector/internal/pipeline"
)

// Config is the persistent application configuration
type Config struct {
	// DataDir holds the database, logs and event log. Not read from the
	// config file itself.
	DataDir  string `json:"-" yaml:"-"`
	LogLevel string `json:"log_level" yaml:"log_level"`

	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`
	Defaults RunDefaults    `json:"defaults" yaml:"defaults"`
	Reducer  ReducerConfig  `json:"reducer" yaml:"reducer"`
}

// EmbedderConfig selects the embedding backend
type EmbedderConfig struct {
	Provider          string  `json:"provider" yaml:"provider"`
	Endpoint          string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model             string  `json:"model" yaml:"model"`
	Precision         string  `json:"precision" yaml:"precision"`
	APIKey            string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Dimensions        int     `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
}

// RunDefaults fill request fields the caller leaves zero
type RunDefaults struct {
	EmbeddingBatchSize int `json:"embedding_batch_size" yaml:"embedding_batch_size"`
	TargetDim          int `json:"target_dim" yaml:"target_dim"`
	FitSampleSize      int `json:"fit_sample_size" yaml:"fit_sample_size"`
	TransformBatchSize int `json:"transform_batch_size" yaml:"transform_batch_size"`
}

// ReducerConfig holds UMAP settings
type ReducerConfig struct {
	Seed uint64 `json:"seed" yaml:"seed"` // 0 = random per run
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		Embedder: EmbedderConfig{
			Provider:          embed.ProviderOllama,
			Endpoint:          "http://localhost:11434",
			Model:             "nomic-embed-text",
			Precision:         "fp32",
			RequestsPerSecond: 5,
		},
		Defaults: RunDefaults{
			EmbeddingBatchSize: 32,
			TargetDim:          0,
			FitSampleSize:      1000,
			TransformBatchSize: 256,
		},
	}
}

// DefaultDataDir is $PROJECTOR_DATA_DIR or ~/.projector.
func DefaultDataDir() string {
	if dir := os.Getenv("PROJECTOR_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".projector")
}

// ConfigPath returns the config file in dataDir. config.yaml wins over
// config.json when both exist; neither existing yields the JSON path.
func ConfigPath(dataDir string) string {
	yamlPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return filepath.Join(dataDir, "config.json")
}

// Load builds the effective config: defaults, then the config file in dataDir
// (if any), then .env, then environment variables. An empty dataDir uses
// DefaultDataDir.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	cfg, err := LoadFile(ConfigPath(dataDir))
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir

	LoadDotEnv()
	cfg.AutoPopulateFromEnv()
	return cfg, nil
}

// LoadFile reads path over the defaults. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to path, as YAML or JSON by extension.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadDotEnv loads the nearest .env file without overriding variables that
// are already set. Returns the file used, if any.
func LoadDotEnv() (string, bool) {
	path, ok := FindEnvFile()
	if !ok {
		return "", false
	}
	if err := godotenv.Load(path); err != nil {
		return "", false
	}
	return path, true
}

// FindEnvFile looks for .env in the working directory and up to five parents.
func FindEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// AutoPopulateFromEnv applies environment overrides. The API key comes from
// the variable belonging to the selected provider.
func (c *Config) AutoPopulateFromEnv() {
	if v := os.Getenv("PROJECTOR_PROVIDER"); v != "" {
		c.Embedder.Provider = v
	}
	if v := os.Getenv("PROJECTOR_MODEL"); v != "" {
		c.Embedder.Model = v
	}
	if v := os.Getenv("PROJECTOR_PRECISION"); v != "" {
		c.Embedder.Precision = v
	}
	if v := os.Getenv("PROJECTOR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PROJECTOR_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Reducer.Seed = seed
		}
	}

	switch strings.ToLower(c.Embedder.Provider) {
	case embed.ProviderOllama, "":
		if v := os.Getenv("OLLAMA_HOST"); v != "" {
			if !strings.Contains(v, "://") {
				v = "http://" + v
			}
			c.Embedder.Endpoint = v
		}
	case embed.ProviderJina:
		c.clearOllamaEndpoint()
		if key := os.Getenv("JINA_API_KEY"); key != "" {
			c.Embedder.APIKey = key
		}
	case embed.ProviderOpenAI:
		c.clearOllamaEndpoint()
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Embedder.APIKey = key
		}
		if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
			c.Embedder.Endpoint = v
		}
	case embed.ProviderHuggingFace, "hf":
		c.clearOllamaEndpoint()
		if key := os.Getenv("HF_TOKEN"); key != "" {
			c.Embedder.APIKey = key
		}
	}
}

// clearOllamaEndpoint drops the default Ollama URL when another provider is
// selected, so that provider falls back to its own endpoint.
func (c *Config) clearOllamaEndpoint() {
	if c.Embedder.Endpoint == DefaultConfig().Embedder.Endpoint {
		c.Embedder.Endpoint = ""
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Embedder.Provider) {
	case embed.ProviderOllama, "", embed.ProviderHuggingFace, "hf":
	case embed.ProviderJina:
		if c.Embedder.APIKey == "" {
			return errors.New("config: jina provider needs JINA_API_KEY")
		}
	case embed.ProviderOpenAI:
		if c.Embedder.APIKey == "" && c.Embedder.Endpoint == "" {
			return errors.New("config: openai provider needs OPENAI_API_KEY or a custom endpoint")
		}
	default:
		return fmt.Errorf("config: unknown provider %q", c.Embedder.Provider)
	}

	if c.Embedder.Model == "" {
		return errors.New("config: embedder model is required")
	}
	if c.Defaults.EmbeddingBatchSize <= 0 {
		return errors.New("config: embedding_batch_size must be positive")
	}
	if c.Defaults.FitSampleSize <= 0 {
		return errors.New("config: fit_sample_size must be positive")
	}
	if c.Defaults.TransformBatchSize <= 0 {
		return errors.New("config: transform_batch_size must be positive")
	}
	if c.Defaults.TargetDim < 0 {
		return errors.New("config: target_dim must not be negative")
	}
	return nil
}

// EmbedOptions returns the backend factory options.
func (c *Config) EmbedOptions() embed.Options {
	return embed.Options{
		Provider:          c.Embedder.Provider,
		Endpoint:          c.Embedder.Endpoint,
		APIKey:            c.Embedder.APIKey,
		Dimensions:        c.Embedder.Dimensions,
		RequestsPerSecond: c.Embedder.RequestsPerSecond,
	}
}

// RequestDefaults returns the values used to fill incomplete run requests.
func (c *Config) RequestDefaults() pipeline.Defaults {
	return pipeline.Defaults{
		ModelID:                c.Embedder.Model,
		PrecisionMode:          c.Embedder.Precision,
		EmbeddingBatchSize:     c.Defaults.EmbeddingBatchSize,
		TargetDim:              c.Defaults.TargetDim,
		UMAPFitSampleSize:      c.Defaults.FitSampleSize,
		UMAPTransformBatchSize: c.Defaults.TransformBatchSize,
	}
}

// DBPath is the sqlite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "projector.db")
}

// EventLogPath is the structured event log location.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.DataDir, "projector.events.jsonl")
}
