package session

import (
	"sync"
	"testing"

	"github.com/OCAP2/racetrack/internal/race"
	"github.com/OCAP2/racetrack/pkg/core"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Defaults(t *testing.T) {
	ctx := NewContext()

	assert.Equal(t, NoRaceName, ctx.Race().RaceName)
	assert.Nil(t, ctx.Controller())
	assert.False(t, ctx.Active())
	assert.Nil(t, ctx.LogAttrs())
}

func TestContext_StartAndClear(t *testing.T) {
	ctx := NewContext()
	ctrl, err := race.NewController(nil)
	require.NoError(t, err)

	r := &core.Race{RaceID: NewRaceID(), RaceName: "Cup", TrackName: "Harbour"}
	ctx.Start(r, ctrl)

	assert.True(t, ctx.Active())
	assert.Same(t, ctrl, ctx.Controller())
	assert.Equal(t, "Cup", ctx.Race().RaceName)

	attrs := ctx.LogAttrs()
	require.Len(t, attrs, 3)
	assert.Equal(t, r.RaceID, attrs[0].Value.String())
	assert.Equal(t, "Harbour", attrs[2].Value.String())

	ctx.Clear()
	assert.False(t, ctx.Active())
	assert.Equal(t, NoRaceName, ctx.Race().RaceName)
}

func TestContext_ConcurrentAccess(t *testing.T) {
	ctx := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx.Start(&core.Race{RaceName: "x"}, nil)
		}()
		go func() {
			defer wg.Done()
			_ = ctx.Race()
			_ = ctx.LogAttrs()
		}()
	}
	wg.Wait()
}

func TestNewRaceID(t *testing.T) {
	a, b := NewRaceID(), NewRaceID()
	assert.NotEqual(t, a, b)

	_, err := ksuid.Parse(a)
	assert.NoError(t, err)
}
