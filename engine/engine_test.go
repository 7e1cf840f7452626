package engine

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
)

func TestGesture_End(t *testing.T) {
	g := Gesture{
		Start: Point{X: 10, Y: 20},
		Moves: []Move{{DX: 5, DY: 1}, {DX: 7.5, DY: -2}},
	}
	assert.Equal(t, Point{X: 22.5, Y: 19}, g.End())
}

func TestBox_Center(t *testing.T) {
	b := Box{X: 100, Y: 50, Width: 40, Height: 30}
	assert.Equal(t, Point{X: 120, Y: 65}, b.Center())
}

func TestSleep_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestBlockedSet(t *testing.T) {
	got := blockedSet([]string{"Font", "Media", "Stylesheet", "Bogus"})
	assert.Len(t, got, 2)
	assert.Contains(t, got, proto.NetworkResourceTypeFont)
	assert.Contains(t, got, proto.NetworkResourceTypeMedia)
	assert.NotContains(t, got, proto.NetworkResourceTypeStylesheet)

	assert.Empty(t, blockedSet(nil))
}

func TestToHeadersMap(t *testing.T) {
	h := toHeadersMap(map[string]string{"Accept-Language": "zh-CN"})
	assert.Equal(t, "zh-CN", h["Accept-Language"].Str())
}
