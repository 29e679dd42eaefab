// Package storage provides the blob-store surface the reconciler publishes
// through: whole-object download and upload, nothing finer grained. The feed
// is replaced wholesale per run, so partial writes must never be visible.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports that the named blob does not exist. Callers decide
// whether that is an acknowledged first run or a failure.
var ErrNotFound = errors.New("storage: blob not found")

// ErrExists reports an upload with overwrite disabled hitting an existing
// blob.
var ErrExists = errors.New("storage: blob already exists")

// Blob is the minimal storage contract. Retry and backoff belong to the
// underlying client, not to callers of this interface.
type Blob interface {
	// Download returns the full content of the named blob, or ErrNotFound.
	Download(ctx context.Context, name string) ([]byte, error)

	// Upload replaces the named blob with data in one operation. With
	// overwrite disabled it fails with ErrExists if the blob is present.
	Upload(ctx context.Context, name string, data []byte, overwrite bool) error
}
