package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalAlbum copies recordings into <dir>/<album>/, overwriting any file
// of the same name.
type LocalAlbum struct {
	Dir string
}

func NewLocalAlbum(dir string) *LocalAlbum {
	return &LocalAlbum{Dir: filepath.Clean(dir)}
}

func (a *LocalAlbum) Name() string { return "local" }

func (a *LocalAlbum) Save(ctx context.Context, srcPath, album string) (string, error) {
	if a.Dir == "" || a.Dir == "." {
		return "", ErrNotConfigured
	}
	if srcPath == "" {
		return "", errors.New("source path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	destPath, err := containedPath(a.Dir, filepath.Join(album, filepath.Base(srcPath)))
	if err != nil {
		return "", err
	}
	if err := copyFile(srcPath, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

// containedPath ensures that the resolved path stays within basePath.
func containedPath(basePath, untrustedPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absJoined, err := filepath.Abs(filepath.Join(absBase, untrustedPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q resolves outside base %q", untrustedPath, absBase)
	}
	return absJoined, nil
}

func copyFile(srcPath, destPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	info, statErr := srcFile.Stat()
	if statErr != nil {
		_ = srcFile.Close()
		return fmt.Errorf("failed to stat source file: %w", statErr)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		_ = srcFile.Close()
		return fmt.Errorf("failed to create album directory: %w", err)
	}

	destFile, err := os.Create(destPath)
	if err != nil {
		_ = srcFile.Close()
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	_, err = io.Copy(destFile, srcFile)
	closeErr := destFile.Close()
	if err == nil {
		err = closeErr
	}
	closeErr = srcFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chtimes(destPath, info.ModTime(), info.ModTime())
	}

	if err != nil {
		return fmt.Errorf("failed to copy recording: %w", err)
	}
	return nil
}
