package chatview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dmchat/internal/models"
)

func TestScrollGateOpensOncePerWindow(t *testing.T) {
	now := time.UnixMilli(0)
	gate := NewScrollGate(200*time.Millisecond, func() time.Time { return now })

	assert.True(t, gate.Allow())
	assert.False(t, gate.Allow())
	now = now.Add(199 * time.Millisecond)
	assert.False(t, gate.Allow())
	now = now.Add(2 * time.Millisecond)
	assert.True(t, gate.Allow())
}

func TestLoadZone(t *testing.T) {
	assert.True(t, ScrollMetrics{ScrollTop: 0, ScrollHeight: 1000, ClientHeight: 500}.InLoadZone())
	assert.True(t, ScrollMetrics{ScrollTop: 100, ScrollHeight: 1000, ClientHeight: 500}.InLoadZone())
	assert.False(t, ScrollMetrics{ScrollTop: 101, ScrollHeight: 1000, ClientHeight: 500}.InLoadZone())
	assert.False(t, ScrollMetrics{ScrollTop: 0, ScrollHeight: 500, ClientHeight: 500}.InLoadZone())
}

func TestAnchorRestoreKeepsVisibleMessage(t *testing.T) {
	a := AnchorOf(ScrollMetrics{ScrollTop: 40, ScrollHeight: 1000, ClientHeight: 500})
	assert.Equal(t, 1540.0, a.Restore(2500))
}

func msg(id string, at int64) models.Message {
	return models.Message{ID: id, CreatedAt: at, Body: models.TextBody{Text: id}}
}

func TestMergeTailKeepsStrictlyOlder(t *testing.T) {
	loaded := []models.Message{msg("a", 1), msg("b", 2), msg("c", 2), msg("d", 3)}
	tail := []models.Message{msg("c", 2), msg("d", 3), msg("e", 4)}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(mergeTail(loaded, tail)))
	assert.Equal(t, loaded, mergeTail(loaded, nil))
}

func TestPrependOlderSkipsDuplicates(t *testing.T) {
	loaded := []models.Message{msg("c", 3), msg("d", 4)}
	page := []models.Message{msg("a", 1), msg("b", 2), msg("c", 3)}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(prependOlder(loaded, page)))
}

func TestReverseLeavesInputAlone(t *testing.T) {
	in := []models.Message{msg("a", 1), msg("b", 2)}
	out := reverse(in)
	assert.Equal(t, []string{"b", "a"}, ids(out))
	assert.Equal(t, []string{"a", "b"}, ids(in))
}
