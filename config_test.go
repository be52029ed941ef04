package rudo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSetConfigLowersYoungCollectThreshold proves SetConfig's thresholds
// are actually consulted by the Drop-triggered collect path, not just
// stored: with the threshold dropped to a single small object, the next
// Drop must trigger a minor collection and promote the page holding the
// first one.
func TestSetConfigLowersYoungCollectThreshold(t *testing.T) {
	defer SetConfig(DefaultConfig())

	SetConfig(Config{YoungCollectThreshold: 1, MajorHeapThreshold: DefaultConfig().MajorHeapThreshold})

	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 1)
	RegisterTestRoot(g.Addr())
	defer ClearTestRoots()

	p, ok := lookupPage(pageOf(g.Addr()))
	assert.True(t, ok)
	assert.Equal(t, genYoung, p.generationTag())

	// h's Drop is the maybeCollect check: YoungBytes is already past the
	// 1-byte threshold from g above, so this triggers a minor GC before
	// Drop returns.
	h := New[int](w, 2)
	h.Drop(w)

	assert.Equal(t, genOld, p.generationTag(), "lowered threshold should have triggered a minor GC that promoted g's page")

	g.Drop(w)
}

// TestSetConfigZeroFieldFallsBackToDefault asserts a zero threshold in
// the Config passed to SetConfig does not disable that check entirely.
func TestSetConfigZeroFieldFallsBackToDefault(t *testing.T) {
	defer SetConfig(DefaultConfig())

	SetConfig(Config{})

	assert.Equal(t, uint64(youngCollectThreshold), currentYoungCollectThreshold.Load())
	assert.Equal(t, uint64(majorHeapThreshold), currentMajorHeapThreshold.Load())
}
