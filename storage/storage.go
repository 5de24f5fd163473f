// Package storage wraps the remote image host: local compression, upload,
// and best-effort deletion.
package storage

import "context"

type UploadResult struct {
	URL      string
	PublicID string
	Width    int
	Height   int
}

// DeleteOutcome records the result of one attempted remote deletion.
// Best-effort callers can tell "attempted" from "succeeded" without any
// outcome ever aborting the enclosing operation.
type DeleteOutcome struct {
	PublicID string
	Err      error
}

type Store interface {
	// UploadCompressed re-orients, downscales and re-encodes the raw image
	// bytes, then uploads the result. The mime type picks the output format.
	UploadCompressed(ctx context.Context, data []byte, name, mimeType string) (*UploadResult, error)
	// Delete removes a single remote object.
	Delete(ctx context.Context, publicID string) error
	// DeleteMany fans out deletions concurrently and never fails; failures
	// are reported per item and logged.
	DeleteMany(ctx context.Context, publicIDs []string) []DeleteOutcome
}
