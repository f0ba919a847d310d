package pg

import (
	"fmt"

	"github.com/opencoder/agentruntime/internal/store"
)

// NewPGStores creates all stores backed by Postgres.
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return &store.Stores{
		Sessions:     NewPGSessionStore(db),
		MCP:          NewPGMCPServerStore(db, cfg.EncryptionKey),
		BuiltinTools: NewPGBuiltinToolStore(db),
	}, nil
}
