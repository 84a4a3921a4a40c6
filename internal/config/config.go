// Package config loads quizdeck settings and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProviderType identifies a text completion backend.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
	ProviderBedrock   ProviderType = "bedrock"
)

// Question count bounds accepted by the prompt builder.
const (
	MinQuestions = 5
	MaxQuestions = 50
)

// Config holds all configuration values.
type Config struct {
	// Artifact root; every file is keyed by source ID below it.
	DataDir string `yaml:"data_dir"`

	// Completion provider
	LLMProvider     ProviderType  `yaml:"llm_provider"`
	LLMModel        string        `yaml:"llm_model"`
	Temperature     float64       `yaml:"temperature"`
	MaxRetries      int           `yaml:"max_retries"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	OpenAIAPIKey    string        `yaml:"-"`
	AnthropicAPIKey string        `yaml:"-"`
	OllamaHost      string        `yaml:"ollama_host"`
	AWSRegion       string        `yaml:"aws_region"`

	// Quiz generation
	QuestionCount      int    `yaml:"question_count"`
	MaxTranscriptChars int    `yaml:"max_transcript_chars"`
	TranscriptLang     string `yaml:"transcript_lang"`

	// Output sinks
	DeckServiceURL string `yaml:"deck_service_url"`
	DisableAnki    bool   `yaml:"disable_anki"`
	DisablePDF     bool   `yaml:"disable_pdf"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// Server
	ServerPort     string `yaml:"server_port"`
	JobConcurrency int    `yaml:"job_concurrency"`
}

// Load reads configuration from a .env file (if present), environment
// variables and finally the YAML file named by QUIZDECK_CONFIG.
func Load() (Config, error) {
	// Missing .env is the common case.
	_ = godotenv.Load()

	temperature, err := parseFloatEnv("QUIZDECK_TEMPERATURE", 0.7)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUIZDECK_TEMPERATURE: %w", err)
	}
	maxRetries, err := parseIntEnv("QUIZDECK_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUIZDECK_MAX_RETRIES: %w", err)
	}
	backoff, err := time.ParseDuration(getEnv("QUIZDECK_BACKOFF_BASE", "2s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse QUIZDECK_BACKOFF_BASE: %w", err)
	}
	questions, err := parseIntEnv("QUIZDECK_QUESTION_COUNT", 20)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUIZDECK_QUESTION_COUNT: %w", err)
	}
	maxChars, err := parseIntEnv("QUIZDECK_MAX_TRANSCRIPT_CHARS", 60000)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUIZDECK_MAX_TRANSCRIPT_CHARS: %w", err)
	}
	jobConcurrency, err := parseIntEnv("QUIZDECK_JOB_CONCURRENCY", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUIZDECK_JOB_CONCURRENCY: %w", err)
	}

	cfg := Config{
		DataDir: getEnv("QUIZDECK_DATA_DIR", "data"),

		LLMProvider:     ProviderType(strings.ToLower(getEnv("QUIZDECK_LLM_PROVIDER", string(ProviderOpenAI)))),
		LLMModel:        getEnv("QUIZDECK_LLM_MODEL", "gpt-4o"),
		Temperature:     temperature,
		MaxRetries:      maxRetries,
		BackoffBase:     backoff,
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		QuestionCount:      questions,
		MaxTranscriptChars: maxChars,
		TranscriptLang:     getEnv("QUIZDECK_TRANSCRIPT_LANG", "en"),

		DeckServiceURL: getEnv("QUIZDECK_DECK_SERVICE_URL", "http://localhost:8765"),
		DisableAnki:    getEnv("QUIZDECK_DISABLE_ANKI", "false") == "true",
		DisablePDF:     getEnv("QUIZDECK_DISABLE_PDF", "false") == "true",

		LogFile:  getEnv("QUIZDECK_LOG_FILE", "/tmp/quizdeck.log"),
		LogLevel: parseLogLevel(getEnv("QUIZDECK_LOG_LEVEL", "INFO")),

		ServerPort:     getEnv("QUIZDECK_SERVER_PORT", "8585"),
		JobConcurrency: jobConcurrency,
	}

	if path := os.Getenv("QUIZDECK_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overlayFile merges non-zero values from a YAML file on top of cfg.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Decoding into the populated struct keeps fields the file omits.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderBedrock:
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}
	if c.QuestionCount < MinQuestions || c.QuestionCount > MaxQuestions {
		return fmt.Errorf("question count %d outside [%d, %d]", c.QuestionCount, MinQuestions, MaxQuestions)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f outside [0, 2]", c.Temperature)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if c.JobConcurrency < 1 {
		return fmt.Errorf("job concurrency must be at least 1, got %d", c.JobConcurrency)
	}
	return nil
}

// Paths returns the artifact layout rooted at DataDir.
func (c Config) Paths() Paths {
	return NewPaths(c.DataDir)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseIntEnv(key string, fallback int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
