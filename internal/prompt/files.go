package prompt

import (
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/opencode-ai/emigo/internal/tokenizer"
	"github.com/opencode-ai/emigo/internal/workspace"
	"github.com/opencode-ai/emigo/pkg/types"
)

// MaxFileBytes is the largest file that will be inlined.
const MaxFileBytes = 10 * 1024 * 1024

// Reasons reported for skipped files.
const (
	SkipMissing  = "not found"
	SkipNotFile  = "not a regular file"
	SkipOutside  = "outside workspace"
	SkipTooLarge = "too large"
	SkipBinary   = "binary content"
	SkipEncoding = "invalid UTF-8"
	SkipRead     = "read failed"
)

const truncatedMarker = "\n... (truncated)\n"

// fileMessage builds the user message inlining rel. It returns a skip
// reason instead when the file cannot be used.
func fileMessage(fs afero.Fs, root, rel string, readOnly bool, tok tokenizer.Tokenizer, budget int) (types.Message, string) {
	path := filepath.Clean(filepath.Join(root, filepath.FromSlash(rel)))
	if !workspace.Contains(root, path) {
		return types.Message{}, SkipOutside
	}

	info, err := fs.Stat(path)
	if err != nil {
		return types.Message{}, SkipMissing
	}
	if !info.Mode().IsRegular() {
		return types.Message{}, SkipNotFile
	}
	if info.Size() > MaxFileBytes {
		return types.Message{}, SkipTooLarge
	}

	data, err := readFile(fs, path)
	if err != nil {
		return types.Message{}, SkipRead
	}

	header := rel
	if readOnly {
		header += " (read-only, do not edit)"
	}

	if isImageFile(rel) {
		url := fmt.Sprintf("data:%s;base64,%s", detectMediaType(rel), base64.StdEncoding.EncodeToString(data))
		return types.Message{
			Role: types.RoleUser,
			Parts: []types.ContentPart{
				{Type: types.PartText, Text: header},
				{Type: types.PartImage, ImageURL: url, MimeType: detectMediaType(rel)},
			},
		}, ""
	}

	if isBinary(data) {
		return types.Message{}, SkipBinary
	}
	if !utf8.Valid(data) {
		return types.Message{}, SkipEncoding
	}

	text := string(data)
	if budget > 0 && tok.Count(text) > budget {
		text = tok.Truncate(text, budget) + truncatedMarker
	}

	return types.Message{
		Role:    types.RoleUser,
		Content: fence(header, text),
	}, ""
}

func readFile(fs afero.Fs, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxFileBytes+1))
}

// fence wraps text in a code fence long enough not to collide with any
// fence inside it.
func fence(header, text string) string {
	marker := "```"
	for strings.Contains(text, marker) {
		marker += "`"
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return header + "\n" + marker + "\n" + text + marker
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

func detectMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// isBinary looks for NUL bytes or a high share of control characters in
// the first 8000 bytes.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	if n == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range data[:n] {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\n' && b != '\r' && b != '\t' && b != '\f' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.3
}
