package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

// DefaultModel is the hardcoded descriptor used when discovery has nothing
// better to offer.
func DefaultModel() Model {
	return Model{
		ID:            "openai/gpt-4o-mini",
		Name:          "GPT-4o Mini",
		Description:   "Fallback descriptor used when model discovery is unavailable.",
		PromptPrice:   "0.00000015",
		ContextLength: 128000,
	}
}

// Catalog fetches the remote model list and caches it per credential hash.
// Reads may happen concurrently; refreshes are last-writer-wins.
type Catalog struct {
	endpoint string
	ttl      time.Duration
	client   *http.Client
	log      *slog.Logger
	fresh    *expirable.LRU[string, ModelCacheEntry]
	now      func() time.Time

	mu    sync.Mutex
	stale map[string]ModelCacheEntry
}

func NewCatalog(cfg config.LLMConfig, log *slog.Logger) *Catalog {
	ttl := time.Duration(cfg.CacheTTLMinute) * time.Minute
	return &Catalog{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		ttl:      ttl,
		client:   newTransportClient(time.Duration(cfg.TimeoutMS) * time.Millisecond),
		log:      log,
		fresh:    expirable.NewLRU[string, ModelCacheEntry](16, nil, ttl),
		now:      time.Now,
		stale:    make(map[string]ModelCacheEntry),
	}
}

// GetModels returns the model list for a credential: unexpired cache entry
// unless forced, then the network, then the last cached entry for this
// credential, then the single hardcoded default. The result is never empty
// and network-class failures never surface as errors.
func (c *Catalog) GetModels(ctx context.Context, credential string, forceRefresh bool) []Model {
	hash := credentialHash(credential)

	if !forceRefresh {
		if entry, ok := c.fresh.Get(hash); ok && c.now().Before(entry.ExpiresAt) {
			return entry.Models
		}
	}

	models, variant, err := c.fetch(ctx, credential)
	if err == nil && len(models) > 0 {
		entry := ModelCacheEntry{
			CredentialHash: hash,
			Models:         models,
			CachedAt:       c.now(),
			ExpiresAt:      c.now().Add(c.ttl),
		}
		c.fresh.Add(hash, entry)
		c.mu.Lock()
		c.stale[hash] = entry
		c.mu.Unlock()
		c.log.Debug("model list refreshed",
			slog.String("variant", variant),
			slog.Int("models", len(models)))
		return models
	}
	if err != nil {
		c.log.Warn("model discovery failed", slog.String("error", err.Error()))
	}

	c.mu.Lock()
	entry, ok := c.stale[hash]
	c.mu.Unlock()
	if ok && len(entry.Models) > 0 {
		return entry.Models
	}
	return []Model{DefaultModel()}
}

func (c *Catalog) fetch(ctx context.Context, credential string) ([]Model, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/models", nil)
	if err != nil {
		return nil, "", err
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("model discovery request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read model list: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("model endpoint returned %s: %s", resp.Status, firstLine(body))
	}
	return ParseModels(body)
}

func credentialHash(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
