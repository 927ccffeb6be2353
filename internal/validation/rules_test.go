package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/uploadq/internal/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestNotEmpty(t *testing.T) {
	ctx := context.Background()
	rule := NotEmpty()

	assert.NoError(t, rule(ctx, models.NewFile("a.txt", []byte("x"))))
	assert.ErrorIs(t, rule(ctx, models.NewFile("a.txt", nil)), ErrEmptyFile)
	assert.ErrorIs(t, rule(ctx, models.NewFile("  ", []byte("x"))), ErrMissingFileName)
}

func TestMaxSize(t *testing.T) {
	ctx := context.Background()
	f := models.File{Name: "big.bin", Size: 3 * 1024 * 1024}

	assert.NoError(t, MaxSize(0)(ctx, f))
	assert.NoError(t, MaxSize(f.Size)(ctx, f))

	err := MaxSize(1024 * 1024)(ctx, f)
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, "big.bin: file is too large (3.0 MiB, limit 1.0 MiB)", err.Error())
}

func TestAllowedTypes(t *testing.T) {
	ctx := context.Background()
	png := models.NewFile("pic.png", pngHeader)
	txt := models.NewFile("notes.txt", []byte("plain text"))

	tests := []struct {
		name     string
		patterns []string
		file     models.File
		wantErr  bool
	}{
		{"no patterns", nil, txt, false},
		{"exact match", []string{"image/png"}, png, false},
		{"wildcard", []string{"image/*"}, png, false},
		{"any", []string{"*/*"}, txt, false},
		{"charset params ignored", []string{"text/plain"}, txt, false},
		{"rejected", []string{"image/*"}, txt, true},
		{"sniffed when type missing", []string{"image/png"}, models.File{Name: "x", Data: pngHeader}, false},
		{"unknown type rejected", []string{"image/png"}, models.File{Name: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AllowedTypes(tt.patterns...)(ctx, tt.file)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTypeNotAllowed)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestChain_FirstFailureWins(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	calls := 0
	counting := func(context.Context, models.File) error { calls++; return nil }
	failing := func(context.Context, models.File) error { return boom }

	err := Chain(counting, nil, failing, counting)(ctx, models.File{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	assert.NoError(t, Chain()(ctx, models.File{}))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", HumanSize(512))
	assert.Equal(t, "1.5 KiB", HumanSize(1536))
	assert.Equal(t, "2.0 GiB", HumanSize(2*1024*1024*1024))
}
