// Package generate wraps the external text-generation backend. The backend
// is rate-limited and unreliable; callers own retry policy, this package
// only classifies failures.
package generate

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator is the single outbound operation the engine depends on.
type Generator interface {
	Generate(ctx context.Context, modelID string, messages []*schema.Message) (string, error)
}

// ArkConfig carries the credentials shared by every model the engine may
// address. The model identifier itself travels per request.
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	BaseURL   string
	Region    string
}

// Enabled reports whether credentials are present.
func (c ArkConfig) Enabled() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// ArkGenerator talks to the Ark backend through eino chat models, one per
// model identifier, created lazily and reused.
type ArkGenerator struct {
	cfg ArkConfig

	mu     sync.Mutex
	models map[string]model.ChatModel
}

// NewArkGenerator returns a Generator backed by Ark.
func NewArkGenerator(cfg ArkConfig) (*ArkGenerator, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY or AK/SK pair")
	}
	return &ArkGenerator{
		cfg:    cfg,
		models: make(map[string]model.ChatModel),
	}, nil
}

// Generate sends the windowed prompt to the backend and returns the reply
// text. Failures are classified so the dispatcher can decide on retry.
func (g *ArkGenerator) Generate(ctx context.Context, modelID string, messages []*schema.Message) (string, error) {
	chatModel, err := g.chatModel(ctx, modelID)
	if err != nil {
		return "", err
	}

	response, err := chatModel.Generate(ctx, messages)
	if err != nil {
		return "", classify(fmt.Errorf("ark generate failed: %w", err))
	}
	if response == nil || response.Content == "" {
		return "", Transient(fmt.Errorf("ark returned empty response"))
	}

	log.Printf("[generate] model=%s turns=%d length=%d", modelID, len(messages), len(response.Content))
	return response.Content, nil
}

func (g *ArkGenerator) chatModel(ctx context.Context, modelID string) (model.ChatModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.models[modelID]; ok {
		return m, nil
	}

	m, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   g.cfg.BaseURL,
		Region:    g.cfg.Region,
		APIKey:    g.cfg.APIKey,
		AccessKey: g.cfg.AccessKey,
		SecretKey: g.cfg.SecretKey,
		Model:     modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model %s: %w", modelID, err)
	}
	g.models[modelID] = m
	return m, nil
}
