// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestEncodeFile_PNG(t *testing.T) {
	path := writeFile(t, "shot.png", pngHeader)

	ref, err := EncodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "shot.png", ref.Name)
	assert.Equal(t, "image/png", ref.MimeType)
	require.True(t, strings.HasPrefix(ref.DataURL, "data:image/png;base64,"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ref.DataURL, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, decoded)
}

func TestEncodeFile_ExtensionFallback(t *testing.T) {
	// WebP is not sniffed by every Go release; the extension decides.
	path := writeFile(t, "pic.webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "))
	ref, err := EncodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", ref.MimeType)
}

func TestEncodeFile_Errors(t *testing.T) {
	_, err := EncodeFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = EncodeFile(t.TempDir())
	assert.Error(t, err)

	text := writeFile(t, "notes.txt", []byte("plain text"))
	_, err = EncodeFile(text)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	big := writeFile(t, "big.png", append(pngHeader, make([]byte, 64)...))
	_, err = (&Encoder{MaxSize: 16}).EncodeFile(big)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/gif;base64,R0lG", DataURL("image/gif", []byte("GIF")))
}
