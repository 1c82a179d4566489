package openai

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/llm"
)

// Config for the OpenAI client.
type Config struct {
	APIKey       string        // empty disables extraction with CONFIGURATION_ERROR
	BaseURL      string        // default https://api.openai.com/v1
	Model        string        // e.g., "gpt-4o-mini"
	Temperature  float32       // 0..2
	Timeout      time.Duration // http client timeout for one extraction
	ProbeTimeout time.Duration // credential check before the first extraction
}

// ConfigFrom maps the application LLM section.
func ConfigFrom(c common.LLMConfig) Config {
	return Config{
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		Model:        c.Model,
		Temperature:  c.Temperature,
		Timeout:      c.Timeout,
		ProbeTimeout: c.ProbeTimeout,
	}
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	verified bool
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// NewExtractor returns a client for c, or a disabled extractor that fails
// every call with CONFIGURATION_ERROR when no API key is set.
func NewExtractor(c common.LLMConfig, logger *slog.Logger) llm.Extractor {
	if c.APIKey == "" {
		if logger != nil {
			logger.Warn("llm.disabled", "reason", "OPENAI_API_KEY is not set")
		}
		return llm.Disabled{Reason: "OPENAI_API_KEY is not set"}
	}
	return NewClient(ConfigFrom(c), logger)
}
