package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// ReceiptFileStorage implements port.ReceiptStorage on the local filesystem.
// Receipts are stored as <owner>/<uuid>-<file name> below baseDir.
type ReceiptFileStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewReceiptFileStorage creates a new ReceiptFileStorage
func NewReceiptFileStorage(baseDir string, logger *zap.Logger) port.ReceiptStorage {
	return &ReceiptFileStorage{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes a receipt for owner and returns its slash-separated relative path
func (s *ReceiptFileStorage) Save(ctx context.Context, owner, fileName string, content []byte) (string, error) {
	name := utils.SanitizeFileName(fileName)
	if name == "" {
		return "", fmt.Errorf("invalid receipt file name: %q", fileName)
	}

	folder := OwnerFolder(owner)
	relPath := folder + "/" + uuid.NewString() + "-" + name
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(relPath))

	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create receipt folder",
			zap.String("folder", folder),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write receipt",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("Receipt saved",
		zap.String("path", relPath),
		zap.Int("size", len(content)))

	return relPath, nil
}

// Open resolves a relative receipt path to an existing file inside baseDir
func (s *ReceiptFileStorage) Open(relativePath string) (string, error) {
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(relativePath))
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return "", port.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat receipt: %w", err)
	}
	if info.IsDir() {
		return "", port.ErrNotFound
	}

	return filepath.Abs(fullPath)
}

// OwnerFolder turns an email into a folder name safe for any filesystem
func OwnerFolder(owner string) string {
	name := strings.ReplaceAll(owner, "@", "_at_")
	name = unsafeFolderChars.ReplaceAllString(name, "")
	if name == "" {
		return "anonymous"
	}
	return name
}

// validatePath checks that the path stays within baseDir
func (s *ReceiptFileStorage) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return nil
}
