package polymath

import (
	"github.com/polymath-app/polymath-go/internal/database"
	"github.com/polymath-app/polymath-go/internal/embeddings"
	"github.com/polymath-app/polymath-go/internal/matching"
	"github.com/polymath-app/polymath-go/internal/reasoning"
)

// Config exposes a stable wrapper for database configuration in package mode.
// Most fields map directly to internal/database.Config.
type Config struct {
	URL            string
	AuthToken      string
	EmbeddingDims  int
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdleSec int
	ConnMaxLifeSec int
}

func (c *Config) toInternal() *database.Config {
	cfg := &database.Config{
		URL:            c.URL,
		AuthToken:      c.AuthToken,
		EmbeddingDims:  c.EmbeddingDims,
		MaxOpenConns:   c.MaxOpenConns,
		MaxIdleConns:   c.MaxIdleConns,
		ConnMaxIdleSec: c.ConnMaxIdleSec,
		ConnMaxLifeSec: c.ConnMaxLifeSec,
	}
	if cfg.URL == "" {
		cfg.URL = "file:./polymath.db"
	}
	if cfg.EmbeddingDims <= 0 {
		cfg.EmbeddingDims = 1536
	}
	return cfg
}

// Open constructs a Service with the provided config, pulling providers from
// the environment. Embedding output is adapted to the schema's vector width.
func Open(cfg *Config) (*Service, error) {
	store, err := database.NewStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	embedder := embeddings.NewFromEnv()
	if embedder != nil {
		embedder = embeddings.WrapToDims(embedder, store.Config().EmbeddingDims, "")
	}
	return New(store, embedder, reasoning.NewFromEnv(), matching.DefaultPolicy()), nil
}
