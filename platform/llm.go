package platform

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func NewLLMClient(cfg *Config) *openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.LLMAPIKey)}
	if cfg.LLMBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.LLMBaseURL))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}
	return openai.NewClient(opts...)
}
