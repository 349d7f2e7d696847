package dbusproxy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitForSocketReturnsImmediatelyIfAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bus")
	assert.NoError(t, os.WriteFile(path, nil, 0o644))

	err := WaitForSocket(context.Background(), path, time.Second)
	assert.NoError(t, err)
}

func TestWaitForSocketDetectsLaterCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bus")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.WriteFile(path, nil, 0o644)
	}()

	err := WaitForSocket(context.Background(), path, 2*time.Second)
	assert.NoError(t, err)
}

func TestWaitForSocketTimesOutWhenNeverCreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bus")

	err := WaitForSocket(context.Background(), path, 50*time.Millisecond)
	assert.Error(t, err)
}
