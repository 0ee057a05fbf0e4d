package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/upn-epc-bridge/pkg/config"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/storage"
)

// archiveOptions selects what history does with one conversion's archived files.
type archiveOptions struct {
	ConversionID string
	ExtractDir   string
	Purge        bool
}

type archiveStore interface {
	List(ctx context.Context, batchID uuid.UUID) ([]*storage.FileInfo, error)
	Open(ctx context.Context, batchID, fileID uuid.UUID) (io.ReadCloser, *storage.FileInfo, error)
	Delete(ctx context.Context, batchID, fileID uuid.UUID) error
}

func runArchiveCommand(ctx context.Context, cfg *config.Config, opts archiveOptions, stdout, stderr io.Writer) int {
	archive, err := storage.NewLocalStorage(cfg.Storage.LocalPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := manageArchive(ctx, archive, opts, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// manageArchive lists the files archived for a conversion, then optionally
// copies them out and removes them. Purge runs only after a successful extract.
func manageArchive(ctx context.Context, a archiveStore, opts archiveOptions, w io.Writer) error {
	batchID, err := uuid.Parse(opts.ConversionID)
	if err != nil {
		return fmt.Errorf("invalid conversion id %q: %w", opts.ConversionID, err)
	}

	files, err := a.List(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to list archive: %w", err)
	}
	if len(files) == 0 {
		_, err := fmt.Fprintf(w, "No archived files for %s.\n", batchID)
		return err
	}

	if err := printArchive(files, w); err != nil {
		return err
	}

	if opts.ExtractDir != "" {
		for _, f := range files {
			path, err := extractFile(ctx, a, f, opts.ExtractDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Extracted: %s\n", path)
		}
	}

	if opts.Purge {
		for _, f := range files {
			if err := a.Delete(ctx, batchID, f.ID); err != nil {
				return fmt.Errorf("failed to delete %s: %w", f.Name, err)
			}
		}
		fmt.Fprintf(w, "Purged: %d file(s).\n", len(files))
	}
	return nil
}

func printArchive(files []*storage.FileInfo, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVED\tNAME\tSIZE\tSHA256")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			f.CreatedAt.Local().Format(time.DateTime),
			f.Name,
			f.Size,
			shortHash(f.SHA256))
	}
	return tw.Flush()
}

func extractFile(ctx context.Context, a archiveStore, f *storage.FileInfo, dir string) (path string, err error) {
	rc, _, err := a.Open(ctx, f.BatchID, f.ID)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path = filepath.Join(dir, filepath.Base(f.Path))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	if _, err := io.Copy(out, rc); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return path, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
