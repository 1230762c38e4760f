package service

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webosce/audiod-pro/internal/track"
)

func TestConnWatcher(t *testing.T) {
	w := NewConnWatcher()

	_, err := w.Watch("com.app", func() {})
	require.ErrorIs(t, err, track.ErrNotWatchable)

	w.connected("com.app")
	w.connected("com.app")

	var gone, cancelled atomic.Int32
	_, err = w.Watch("com.app", func() { gone.Add(1) })
	require.NoError(t, err)
	cancel, err := w.Watch("com.app", func() { cancelled.Add(1) })
	require.NoError(t, err)
	cancel()

	w.disconnected("com.app")
	assert.Zero(t, gone.Load(), "one connection still open")

	w.disconnected("com.app")
	assert.Equal(t, int32(1), gone.Load())
	assert.Zero(t, cancelled.Load())

	_, err = w.Watch("com.app", func() {})
	assert.ErrorIs(t, err, track.ErrNotWatchable)
}
