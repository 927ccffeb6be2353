package cryptox

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestChecksum_Deterministic(t *testing.T) {
	a := Checksum([]byte("payload"))
	b := Checksum([]byte("payload"))
	c := Checksum([]byte("payload!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.Len(t, Checksum(nil), 64)
}

func TestChecksumReader_MatchesChecksum(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 10000)
	got, err := ChecksumReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Checksum(data), got)

	_, err = ChecksumReader(failingReader{})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	data := []byte(strings.Repeat("z", 32))
	assert.True(t, Verify(data, Checksum(data)))
	assert.False(t, Verify(data, Checksum([]byte("other"))))
	assert.False(t, Verify(data, ""))
}
