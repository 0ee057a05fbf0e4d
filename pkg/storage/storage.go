// Package storage archives conversion artifacts (the source PDF, the EPC
// document and registers) grouped by conversion batch.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// FileInfo contains metadata about an archived file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	BatchID     uuid.UUID `json:"batch_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	SHA256      string    `json:"sha256"`
	Path        string    `json:"path"` // relative to the batch directory
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines archive operations
type Storage interface {
	// Save stores a file under a batch and returns its metadata
	Save(ctx context.Context, batchID uuid.UUID, filename, contentType string, r io.Reader) (*FileInfo, error)

	// Open returns a reader for an archived file
	Open(ctx context.Context, batchID, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Info returns metadata without opening the file
	Info(ctx context.Context, batchID, fileID uuid.UUID) (*FileInfo, error)

	// List returns all files of a batch
	List(ctx context.Context, batchID uuid.UUID) ([]*FileInfo, error)

	// Delete removes a file
	Delete(ctx context.Context, batchID, fileID uuid.UUID) error
}

// Content types used by the archive.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)
