// Package validation provides file validators for the upload queue.
//
// A Rule returns nil for an acceptable file, or an error whose message is
// shown to the user as is.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/uploadq/internal/models"
)

// Rule validates a single file.
type Rule func(ctx context.Context, f models.File) error

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file is too large")
	ErrTypeNotAllowed  = errors.New("file type is not allowed")
	ErrMissingFileName = errors.New("file name is required")
)

// NotEmpty rejects zero-length files and files without a name.
func NotEmpty() Rule {
	return func(_ context.Context, f models.File) error {
		if strings.TrimSpace(f.Name) == "" {
			return ErrMissingFileName
		}
		if f.Size == 0 {
			return fmt.Errorf("%s: %w", f.Name, ErrEmptyFile)
		}
		return nil
	}
}

// MaxSize rejects files larger than limit bytes. A non-positive limit
// disables the check.
func MaxSize(limit int64) Rule {
	return func(_ context.Context, f models.File) error {
		if limit <= 0 || f.Size <= limit {
			return nil
		}
		return fmt.Errorf("%s: %w (%s, limit %s)", f.Name, ErrFileTooLarge, HumanSize(f.Size), HumanSize(limit))
	}
}

// AllowedTypes accepts only files whose MIME type matches one of patterns.
// A pattern is either an exact type ("application/pdf") or a wildcard
// ("image/*"). With no patterns every type is accepted.
//
// The type is taken from f.MimeType, or sniffed from f.Data when empty.
func AllowedTypes(patterns ...string) Rule {
	return func(_ context.Context, f models.File) error {
		if len(patterns) == 0 {
			return nil
		}
		mt := f.MimeType
		if mt == "" && len(f.Data) > 0 {
			mt = mimetype.Detect(f.Data).String()
		}
		for _, p := range patterns {
			if matchType(p, mt) {
				return nil
			}
		}
		if mt == "" {
			mt = "unknown"
		}
		return fmt.Errorf("%s: %w (%s)", f.Name, ErrTypeNotAllowed, mt)
	}
}

// Chain runs rules in order and returns the first failure.
func Chain(rules ...Rule) Rule {
	return func(ctx context.Context, f models.File) error {
		for _, rule := range rules {
			if rule == nil {
				continue
			}
			if err := rule(ctx, f); err != nil {
				return err
			}
		}
		return nil
	}
}

func matchType(pattern, mt string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" || mt == "" {
		return false
	}
	if pattern == "*" || pattern == "*/*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		major, _, _ := strings.Cut(mt, "/")
		return strings.EqualFold(major, prefix)
	}
	return mimetype.EqualsAny(mt, pattern)
}

// HumanSize formats n bytes using binary units.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
