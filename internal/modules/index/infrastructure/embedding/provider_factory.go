package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ContextIndex/internal/config"

	arkEmbed "github.com/cloudwego/eino-ext/components/embedding/ark"
	dashscopeEmbed "github.com/cloudwego/eino-ext/components/embedding/dashscope"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

type EmbedderMeta struct {
	Provider string
	Model    string
	Dim      int
}

// Dim 实际使用的向量维度：优先 embedding.dimensions，其次 milvus vectorDim
func Dim(conf *config.Config) int {
	if conf.AIConfig.Embedding.Dimensions > 0 {
		return conf.AIConfig.Embedding.Dimensions
	}
	return conf.MilvusConfig.VectorDim
}

// firstNonEmpty 配置优先，环境变量兜底
func firstNonEmpty(value string, envKey string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

func NewEmbedderFromConfig(ctx context.Context, conf *config.Config) (embedding.Embedder, EmbedderMeta, error) {
	if conf == nil {
		return nil, EmbedderMeta{}, fmt.Errorf("nil config")
	}

	ec := conf.AIConfig.Embedding
	dim := Dim(conf)
	provider := strings.ToLower(strings.TrimSpace(ec.Provider))
	timeout := 30 * time.Second
	if ec.TimeoutSeconds > 0 {
		timeout = time.Duration(ec.TimeoutSeconds) * time.Second
	}

	switch provider {
	case "", "mock":
		return NewMockEmbedder(dim), EmbedderMeta{Provider: "mock", Model: "mock", Dim: dim}, nil
	case "openai":
		apiKey := firstNonEmpty(ec.APIKey, "OPENAI_API_KEY")
		model := firstNonEmpty(ec.Model, "OPENAI_EMBED_MODEL")
		if apiKey == "" || model == "" {
			return nil, EmbedderMeta{}, fmt.Errorf("openai embedding missing apiKey/model")
		}
		localDim := dim
		em, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			APIKey:     apiKey,
			Model:      model,
			BaseURL:    firstNonEmpty(ec.BaseURL, "OPENAI_BASE_URL"),
			Timeout:    timeout,
			Dimensions: &localDim,
		})
		if err != nil {
			return nil, EmbedderMeta{}, err
		}
		return em, EmbedderMeta{Provider: "openai", Model: model, Dim: dim}, nil
	case "ark":
		apiKey := firstNonEmpty(ec.APIKey, "ARK_API_KEY")
		model := firstNonEmpty(ec.Model, "ARK_EMBED_MODEL")
		if apiKey == "" || model == "" {
			return nil, EmbedderMeta{}, fmt.Errorf("ark embedding missing apiKey/model")
		}
		em, err := arkEmbed.NewEmbedder(ctx, &arkEmbed.EmbeddingConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: firstNonEmpty(ec.BaseURL, "ARK_BASE_URL"),
		})
		if err != nil {
			return nil, EmbedderMeta{}, err
		}
		return em, EmbedderMeta{Provider: "ark", Model: model, Dim: dim}, nil
	case "dashscope":
		apiKey := firstNonEmpty(ec.APIKey, "DASHSCOPE_API_KEY")
		model := firstNonEmpty(ec.Model, "DASHSCOPE_EMBED_MODEL")
		if apiKey == "" || model == "" {
			return nil, EmbedderMeta{}, fmt.Errorf("dashscope embedding missing apiKey/model")
		}
		localDim := dim
		em, err := dashscopeEmbed.NewEmbedder(ctx, &dashscopeEmbed.EmbeddingConfig{
			Model:      model,
			APIKey:     apiKey,
			Dimensions: &localDim,
		})
		if err != nil {
			return nil, EmbedderMeta{}, err
		}
		return em, EmbedderMeta{Provider: "dashscope", Model: model, Dim: dim}, nil
	default:
		return nil, EmbedderMeta{}, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}
