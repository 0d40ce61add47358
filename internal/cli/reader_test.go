package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	r := NewNonBlockingReader(strings.NewReader("hello world\nnext\n"))

	line, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello world", line)

	line, err = r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "next", line)
}

func TestReadLineTrimsWhitespace(t *testing.T) {
	r := NewNonBlockingReader(strings.NewReader("  spaced  \n"))

	line, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "spaced", line)
}

func TestReadLineEOF(t *testing.T) {
	r := NewNonBlockingReader(strings.NewReader(""))

	_, err := r.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLineCancelled(t *testing.T) {
	// A pipe that never delivers data keeps the read blocked until the
	// context fires.
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewNonBlockingReader(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.ReadLine(ctx)
	assert.ErrorIs(t, err, ErrInputCancelled)
}

func TestNewNonBlockingReaderNilPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewNonBlockingReader(nil)
	})
}
