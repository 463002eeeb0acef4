package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReceiptFileStorage_SaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	s := NewReceiptFileStorage(dir, zap.NewNop())

	rel, err := s.Save(context.Background(), "a@a", "sample.jpg", []byte("jpeg bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "a_at_a/"), rel)
	assert.True(t, strings.HasSuffix(rel, "-sample.jpg"), rel)

	abs, err := s.Open(rel)
	require.NoError(t, err)
	content, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(content))
}

func TestReceiptFileStorage_SameNameDoesNotOverwrite(t *testing.T) {
	s := NewReceiptFileStorage(t.TempDir(), zap.NewNop())

	first, err := s.Save(context.Background(), "a@a", "sample.jpg", []byte("1"))
	require.NoError(t, err)
	second, err := s.Save(context.Background(), "a@a", "sample.jpg", []byte("2"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestReceiptFileStorage_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	s := NewReceiptFileStorage(dir, zap.NewNop())

	rel, err := s.Save(context.Background(), "../../a@a", "../../evil.png", []byte("x"))
	require.NoError(t, err)

	assert.False(t, strings.Contains(rel, ".."), rel)
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	assert.NoError(t, err)
}

func TestReceiptFileStorage_RejectsEmptyName(t *testing.T) {
	s := NewReceiptFileStorage(t.TempDir(), zap.NewNop())

	_, err := s.Save(context.Background(), "a@a", "", []byte("x"))
	assert.Error(t, err)
}

func TestReceiptFileStorage_Open(t *testing.T) {
	dir := t.TempDir()
	s := NewReceiptFileStorage(dir, zap.NewNop())
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a_at_a"), 0755))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"missing file", "a_at_a/missing.jpg", port.ErrNotFound},
		{"directory", "a_at_a", port.ErrNotFound},
		{"escapes base", "../outside.jpg", nil},
		{"base itself", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Open(tt.path)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestOwnerFolder(t *testing.T) {
	assert.Equal(t, "a_at_a", OwnerFolder("a@a"))
	assert.Equal(t, "employee_at_testtld", OwnerFolder("employee@test.tld"))
	assert.Equal(t, "anonymous", OwnerFolder(""))
	assert.Equal(t, "anonymous", OwnerFolder("../.."))
}
