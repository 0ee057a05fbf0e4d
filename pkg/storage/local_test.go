package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	batch := uuid.New()
	info, err := s.Save(ctx, batch, "racun.pdf", ContentTypePDF, strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, batch, info.BatchID)
	assert.Equal(t, int64(8), info.Size)
	assert.Len(t, info.SHA256, 64)
	assert.True(t, strings.HasSuffix(info.Path, "_racun.pdf"))

	rc, got, err := s.Open(ctx, batch, info.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, info.ID, got.ID)

	second, err := s.Save(ctx, batch, "register.txt", ContentTypeText, strings.NewReader("Payment register"))
	require.NoError(t, err)

	files, err := s.List(ctx, batch)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, info.ID, files[0].ID)
	assert.Equal(t, second.ID, files[1].ID)

	require.NoError(t, s.Delete(ctx, batch, info.ID))
	_, err = s.Info(ctx, batch, info.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	files, err = s.List(ctx, batch)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestLocalStorage_UnknownBatch(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	files, err := s.List(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, files)

	_, _, err = s.Open(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"racun.pdf", "racun.pdf"},
		{"../../etc/passwd", "passwd"},
		{"a:b*c?.pdf", "a_b_c_.pdf"},
		{"", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}
