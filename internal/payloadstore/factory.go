package payloadstore

import (
	"context"
	"fmt"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
)

// Build resolves the configured ObjectStore backend and wraps it in an
// Archive, mirroring memorystore.Build's backend-switch pattern: S3 when
// cfg.S3.Enabled, local disk under cfg.DataPath otherwise.
func Build(ctx context.Context, cfg config.Config) (*Archive, error) {
	var store ObjectStore
	if cfg.S3.Enabled {
		s3Store, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("connect s3 payload store: %w", err)
		}
		store = s3Store
	} else {
		disk, err := NewLocalDisk(cfg.DataPath)
		if err != nil {
			return nil, fmt.Errorf("open local payload store: %w", err)
		}
		store = disk
	}
	return &Archive{Store: store}, nil
}
