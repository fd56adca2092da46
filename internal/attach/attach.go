// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach turns image files into data URLs for user messages.
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/navstream/internal/model"
)

// DefaultMaxSize is the largest image accepted (10MB).
const DefaultMaxSize int64 = 10 * 1024 * 1024

var (
	// ErrFileNotFound is returned when a file doesn't exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileTooLarge is returned when a file exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedType is returned for files that are not images.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// SupportedTypes lists the accepted image MIME types.
var SupportedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Encoder reads image files with a size limit.
type Encoder struct {
	MaxSize int64
}

// EncodeFile encodes path with the default size limit.
func EncodeFile(path string) (model.ImageRef, error) {
	return (&Encoder{MaxSize: DefaultMaxSize}).EncodeFile(path)
}

// EncodeFile reads an image and returns it as a base64 data URL.
func (e *Encoder) EncodeFile(path string) (model.ImageRef, error) {
	path = expandHome(strings.TrimSpace(path))

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.ImageRef{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return model.ImageRef{}, err
	}
	if info.IsDir() {
		return model.ImageRef{}, fmt.Errorf("%s is a directory", path)
	}
	limit := e.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	if info.Size() > limit {
		return model.ImageRef{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	mimeType := detectType(path, data)
	if !SupportedTypes[mimeType] {
		return model.ImageRef{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	return model.ImageRef{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		DataURL:  DataURL(mimeType, data),
	}, nil
}

// DataURL formats data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// detectType sniffs the content and falls back to the file extension.
func detectType(path string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	if SupportedTypes[sniffed] {
		return sniffed
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		if i := strings.IndexByte(byExt, ';'); i >= 0 {
			byExt = byExt[:i]
		}
		if SupportedTypes[byExt] {
			return byExt
		}
	}
	return sniffed
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
