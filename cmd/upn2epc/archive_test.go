package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/upn-epc-bridge/pkg/config"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/storage"
)

func seededArchive(t *testing.T) (*storage.LocalStorage, string, uuid.UUID) {
	t.Helper()
	root := t.TempDir()
	archive, err := storage.NewLocalStorage(root)
	require.NoError(t, err)

	id := uuid.New()
	ctx := context.Background()
	_, err = archive.Save(ctx, id, "racuni.pdf", storage.ContentTypePDF, strings.NewReader("%PDF-in"))
	require.NoError(t, err)
	_, err = archive.Save(ctx, id, "racuni_epc_qr.pdf", storage.ContentTypePDF, strings.NewReader("%PDF-out"))
	require.NoError(t, err)
	return archive, root, id
}

// ============================================================================
// Archive
// ============================================================================

func TestManageArchive_List(t *testing.T) {
	archive, _, id := seededArchive(t)
	var out bytes.Buffer

	require.NoError(t, manageArchive(context.Background(), archive, archiveOptions{ConversionID: id.String()}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ARCHIVED"))
	assert.Equal(t, "racuni.pdf", strings.Fields(lines[1])[2])
	assert.Equal(t, "7", strings.Fields(lines[1])[3])
	assert.Equal(t, "racuni_epc_qr.pdf", strings.Fields(lines[2])[2])
	assert.Len(t, strings.Fields(lines[2])[4], 12)
}

func TestManageArchive_Extract(t *testing.T) {
	archive, _, id := seededArchive(t)
	dir := filepath.Join(t.TempDir(), "out")
	var out bytes.Buffer

	err := manageArchive(context.Background(), archive, archiveOptions{ConversionID: id.String(), ExtractDir: dir}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out.String(), "Extracted: "+dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	contents := map[string]string{}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		contents[e.Name()[9:]] = string(data)
	}
	assert.Equal(t, map[string]string{"racuni.pdf": "%PDF-in", "racuni_epc_qr.pdf": "%PDF-out"}, contents)

	files, err := archive.List(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, files, 2, "extract keeps the archive")
}

func TestManageArchive_ExtractThenPurge(t *testing.T) {
	archive, _, id := seededArchive(t)
	dir := t.TempDir()
	var out bytes.Buffer

	err := manageArchive(context.Background(), archive, archiveOptions{ConversionID: id.String(), ExtractDir: dir, Purge: true}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Purged: 2 file(s).\n")

	files, err := archive.List(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, files)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestManageArchive_Empty(t *testing.T) {
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	id := uuid.New()
	var out bytes.Buffer

	require.NoError(t, manageArchive(context.Background(), archive, archiveOptions{ConversionID: id.String(), Purge: true}, &out))
	assert.Equal(t, "No archived files for "+id.String()+".\n", out.String())
}

func TestManageArchive_InvalidID(t *testing.T) {
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = manageArchive(context.Background(), archive, archiveOptions{ConversionID: "latest"}, io.Discard)
	assert.ErrorContains(t, err, `invalid conversion id "latest"`)
}

type brokenArchive struct {
	files   []*storage.FileInfo
	openErr error
	deleted int
}

func (b *brokenArchive) List(context.Context, uuid.UUID) ([]*storage.FileInfo, error) {
	return b.files, nil
}

func (b *brokenArchive) Open(context.Context, uuid.UUID, uuid.UUID) (io.ReadCloser, *storage.FileInfo, error) {
	return nil, nil, b.openErr
}

func (b *brokenArchive) Delete(context.Context, uuid.UUID, uuid.UUID) error {
	b.deleted++
	return nil
}

func TestManageArchive_OpenErrorSkipsPurge(t *testing.T) {
	id := uuid.New()
	a := &brokenArchive{
		files:   []*storage.FileInfo{{ID: uuid.New(), BatchID: id, Name: "racuni.pdf", Path: "abcd1234_racuni.pdf"}},
		openErr: storage.ErrNotFound,
	}

	err := manageArchive(context.Background(), a, archiveOptions{ConversionID: id.String(), ExtractDir: t.TempDir(), Purge: true}, io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Contains(t, err.Error(), "failed to open racuni.pdf")
	assert.Zero(t, a.deleted)
}

func TestRunArchiveCommand(t *testing.T) {
	_, root, id := seededArchive(t)
	cfg := &config.Config{Storage: config.StorageConfig{LocalPath: root}}
	var stdout, stderr bytes.Buffer

	code := runArchiveCommand(context.Background(), cfg, archiveOptions{ConversionID: id.String()}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "racuni_epc_qr.pdf")

	stdout.Reset()
	code = runArchiveCommand(context.Background(), cfg, archiveOptions{ConversionID: "nope"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error: invalid conversion id")
}
