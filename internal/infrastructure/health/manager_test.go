package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthManager_Aggregation(t *testing.T) {
	hm := NewHealthManager(nil)

	// No checks registered
	assert.True(t, hm.IsHealthy())

	hm.Register("store", func() error { return nil })
	assert.True(t, hm.IsHealthy())

	hm.Register("price_feed", func() error { return errors.New("disconnected") })
	assert.False(t, hm.IsHealthy())

	status := hm.GetStatus()
	assert.Equal(t, "Healthy", status["store"])
	assert.Equal(t, "Unhealthy: disconnected", status["price_feed"])
	assert.Equal(t, []string{"price_feed", "store"}, hm.Components())
}

func TestHealthManager_TracksFailureOnset(t *testing.T) {
	hm := NewHealthManager(nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hm.now = func() time.Time { return start }

	var down error = errors.New("down")
	hm.Register("price_feed", func() error { return down })

	assert.False(t, hm.IsHealthy())
	assert.Equal(t, start, hm.UnhealthySince("price_feed"))

	// A later failing run keeps the original onset
	hm.now = func() time.Time { return start.Add(time.Minute) }
	assert.False(t, hm.IsHealthy())
	assert.Equal(t, start, hm.UnhealthySince("price_feed"))

	down = nil
	assert.True(t, hm.IsHealthy())
	assert.True(t, hm.UnhealthySince("price_feed").IsZero())
}
