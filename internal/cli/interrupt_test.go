package cli

import (
	"bytes"
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleInterrupts(t *testing.T) {
	var out bytes.Buffer
	h := NewInterruptHandler(&out)

	ctx := h.HandleInterrupts(context.Background())
	assert.False(t, h.WasInterrupted())

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after signal")
	}

	assert.True(t, h.WasInterrupted())
	assert.Contains(t, out.String(), "interrupted")
}

func TestHandleInterruptsNoSignal(t *testing.T) {
	h := NewInterruptHandler(&bytes.Buffer{})

	ctx := h.HandleInterrupts(context.Background())

	select {
	case <-ctx.Done():
		t.Fatal("context canceled without signal")
	default:
	}
	assert.False(t, h.WasInterrupted())
}
