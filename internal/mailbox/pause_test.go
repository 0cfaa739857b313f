package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPauseGateStartsResumed(t *testing.T) {
	g := NewPauseGate()
	assert.False(t, g.IsPaused())
}

func TestPauseGatePauseResume(t *testing.T) {
	g := NewPauseGate()
	g.Pause()
	assert.True(t, g.IsPaused())
	g.Resume()
	assert.False(t, g.IsPaused())
}

func TestPauseGateToggleReturnsNewState(t *testing.T) {
	g := NewPauseGate()
	assert.True(t, g.Toggle())
	assert.True(t, g.IsPaused())
	assert.False(t, g.Toggle())
	assert.False(t, g.IsPaused())
}

func TestPauseGateToggleIsRaceSafe(t *testing.T) {
	g := NewPauseGate()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Toggle()
		}()
	}
	wg.Wait()
	// 100 toggles from a resumed start leaves it resumed again.
	assert.False(t, g.IsPaused())
}
