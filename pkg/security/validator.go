// Package security bounds what an archive download may write to disk.
package security

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
)

// DefaultMaxFileSize caps a downloaded archive.
const DefaultMaxFileSize = 256 << 20

// ErrTooLarge is returned once an archive exceeds the size limit.
var ErrTooLarge = errors.New("security: archive exceeds size limit")

// Validator checks archive keys and sizes before and during a download
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a validator; a non-positive size takes the default.
func NewValidator(maxFileSize int64) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	slog.Info("security_validator_init", "max_file_size_mb", maxFileSize/1024/1024)
	return &Validator{maxFileSize: maxFileSize}
}

// ValidateKey rejects object keys that are absolute, escape their prefix or
// are not JSON-lines archives.
func (v *Validator) ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		slog.Error("security_key_validation_failed", "s3_key", key, "reason", "absolute_or_empty")
		return fmt.Errorf("security: invalid archive key %q", key)
	}
	if clean := path.Clean(key); clean == ".." || strings.HasPrefix(clean, "../") {
		slog.Error("security_key_validation_failed", "s3_key", key, "reason", "path_traversal")
		return fmt.Errorf("security: archive key %q escapes its prefix", key)
	}
	if path.Ext(key) != ".jsonl" {
		slog.Error("security_key_validation_failed", "s3_key", key, "reason", "extension")
		return fmt.Errorf("security: %q is not a .jsonl archive", key)
	}
	return nil
}

// ValidateFileSize checks a size announced before the download starts.
func (v *Validator) ValidateFileSize(size int64) error {
	if size > v.maxFileSize {
		slog.Error("security_file_size_exceeded",
			"file_size_mb", size/1024/1024,
			"max_file_size_mb", v.maxFileSize/1024/1024)
		return errors.Wrapf(ErrTooLarge, "size %d, max %d", size, v.maxFileSize)
	}
	return nil
}

// Reader wraps r so that reading past the size limit fails with ErrTooLarge.
// Objects may announce no size, or a wrong one.
func (v *Validator) Reader(r io.Reader) io.Reader {
	return &limitedReader{r: r, left: v.maxFileSize, max: v.maxFileSize}
}

type limitedReader struct {
	r    io.Reader
	left int64
	max  int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.left < 0 {
		return 0, errors.Wrapf(ErrTooLarge, "max %d", l.max)
	}
	// Read one byte beyond the limit to tell "exactly max" from "more".
	if int64(len(p)) > l.left+1 {
		p = p[:l.left+1]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	if l.left < 0 {
		return n + int(l.left), errors.Wrapf(ErrTooLarge, "max %d", l.max)
	}
	return n, err
}
