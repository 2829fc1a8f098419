package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/bryanchriswhite/FlameSeg/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorSubscribe(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, "opening", m.Snapshot().State)

	ch := m.Subscribe()
	m.Update(func(s *Status) { s.Frames = 3 })

	got := <-ch
	assert.Equal(t, 3, got.Frames)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// No listeners left: updates must not block
	m.Update(func(s *Status) { s.Frames = 4 })
	assert.Equal(t, 4, m.Snapshot().Frames)
}

func TestMonitorDropsWhenFull(t *testing.T) {
	m := NewMonitor()
	ch := m.Subscribe()
	defer m.Unsubscribe(ch)

	for i := 0; i < 25; i++ {
		m.Update(func(s *Status) { s.Frames++ })
	}
	assert.Len(t, ch, cap(ch))
	assert.Equal(t, 25, m.Snapshot().Frames)
}

func TestMonitorSnapshotIsCopy(t *testing.T) {
	m := NewMonitor()
	props := capture.Properties{Width: 4, Height: 4}
	m.Update(func(s *Status) { s.Properties = &props })

	snap := m.Snapshot()
	snap.Properties.Width = 99
	assert.Equal(t, 4, m.Snapshot().Properties.Width)
}

func TestStatusJSON(t *testing.T) {
	s := Status{RunID: "abc", State: "streaming", Frames: 2, LastCoverage: 0.5}
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "streaming", decoded["state"])
	assert.Equal(t, 0.5, decoded["last_coverage"])
	assert.NotContains(t, decoded, "error")
	assert.NotContains(t, decoded, "properties")
}
