package memorystore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
)

// Backends bundles the two stores a deployment wires together: the
// vector-backed Adapter for Memory CRUD/search, and the relational store
// for Caller/Conversation/Agent/Organization bookkeeping.
type Backends struct {
	Adapter    Adapter
	Relational RelationalStore
}

// Build resolves concrete backends from cfg, mirroring the teacher's
// internal/persistence/databases.NewManager backend-switch-with-pgxpool
// pattern. The vector backend defaults to Qdrant; "memory" selects the
// in-process fake for tests and single-node trials.
func Build(ctx context.Context, cfg config.Config, httpClient *http.Client) (Backends, error) {
	embedder := NewOpenAIEmbedder(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, "text-embedding-3-small", cfg.Qdrant.Dimensions, httpClient)

	var vectors VectorStore
	var err error
	switch {
	case cfg.Qdrant.DSN == "" || cfg.Qdrant.DSN == "memory":
		vectors = NewMemoryVectorStore(cfg.Qdrant.Dimensions)
	default:
		vectors, err = NewQdrantVectorStore(cfg.Qdrant.DSN, cfg.Qdrant.Collection, cfg.Qdrant.Dimensions, cfg.Qdrant.Metric)
		if err != nil {
			return Backends{}, fmt.Errorf("connect qdrant: %w", err)
		}
	}

	var relational RelationalStore
	if cfg.Postgres.DSN == "" {
		relational = NewMemoryRelationalStore()
	} else {
		pool, err := newPgPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return Backends{}, fmt.Errorf("connect postgres: %w", err)
		}
		relational = NewPostgresRelationalStore(pool)
	}

	return Backends{
		Adapter:    NewAdapter(vectors, embedder),
		Relational: relational,
	}, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
