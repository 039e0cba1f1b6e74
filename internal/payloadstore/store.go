// Package payloadstore implements the Persistent Payload Store (C10): a
// durable archive of raw webhook payloads per conversation, plus the
// extraction_state.json marker the recovery sweep scans for deferred jobs.
// Grounded on the teacher's internal/objectstore package: the same narrow
// ObjectStore interface, with a local-disk implementation (new, since the
// teacher only shipped in-memory and S3 backends) standing in as the
// on-disk backend spec.md §6 requires, and the teacher's S3Store kept as
// the optional alternative for deployments that don't want payloads on
// local disk.
package payloadstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// Errors mirrored from the teacher's objectstore package.
var (
	ErrNotFound     = errors.New("payload object not found")
	ErrAccessDenied = errors.New("payload object access denied")
)

// ObjectAttrs describes a stored payload object.
type ObjectAttrs struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// PutOptions configures a Put call.
type PutOptions struct {
	ContentType string
}

// ObjectStore is the narrow storage interface the payload archive is built
// on. Both backends (local disk, S3) implement it; PayloadStore never
// references a concrete backend directly.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error)
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every key with the given prefix, for the recovery
	// sweep's directory scan.
	List(ctx context.Context, prefix string) ([]string, error)
}
