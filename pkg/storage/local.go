package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown file IDs.
var ErrNotFound = errors.New("file not found")

// LocalStorage implements Storage on the local filesystem. Each batch is a
// directory; metadata lives next to the files under .meta.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (s *LocalStorage) Save(ctx context.Context, batchID uuid.UUID, filename, contentType string, r io.Reader) (*FileInfo, error) {
	fileID := uuid.New()

	batchDir := s.batchDir(batchID)
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create batch directory: %w", err)
	}

	stored := fmt.Sprintf("%s_%s", fileID.String()[:8], sanitizeFilename(filename))
	filePath := filepath.Join(batchDir, stored)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	info := &FileInfo{
		ID:          fileID,
		BatchID:     batchID,
		Name:        filename,
		Size:        size,
		ContentType: contentType,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		Path:        stored,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.saveMetadata(info); err != nil {
		os.Remove(filePath)
		return nil, err
	}
	return info, nil
}

func (s *LocalStorage) Open(ctx context.Context, batchID, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.Info(ctx, batchID, fileID)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.batchDir(batchID), info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

func (s *LocalStorage) Info(ctx context.Context, batchID, fileID uuid.UUID) (*FileInfo, error) {
	data, err := os.ReadFile(s.metaPath(batchID, fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

// List returns the batch files ordered by creation time.
func (s *LocalStorage) List(ctx context.Context, batchID uuid.UUID) ([]*FileInfo, error) {
	metaDir := filepath.Join(s.batchDir(batchID), ".meta")
	entries, err := os.ReadDir(metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		info, err := s.Info(ctx, batchID, id)
		if err != nil {
			continue
		}
		files = append(files, info)
	}

	sortByCreated(files)
	return files, nil
}

func (s *LocalStorage) Delete(ctx context.Context, batchID, fileID uuid.UUID) error {
	info, err := s.Info(ctx, batchID, fileID)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.batchDir(batchID), info.Path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	os.Remove(s.metaPath(batchID, fileID))
	return nil
}

func (s *LocalStorage) batchDir(batchID uuid.UUID) string {
	return filepath.Join(s.basePath, batchID.String())
}

func (s *LocalStorage) metaPath(batchID, fileID uuid.UUID) string {
	return filepath.Join(s.batchDir(batchID), ".meta", fileID.String()+".json")
}

func (s *LocalStorage) saveMetadata(info *FileInfo) error {
	metaDir := filepath.Join(s.batchDir(info.BatchID), ".meta")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(info.BatchID, info.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func sortByCreated(files []*FileInfo) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.Before(files[j].CreatedAt)
	})
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	"..", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// sanitizeFilename removes path separators and characters unsafe on common
// filesystems
func sanitizeFilename(name string) string {
	name = filenameReplacer.Replace(filepath.Base(name))
	if name == "" || name == "." {
		return "file"
	}
	return name
}
