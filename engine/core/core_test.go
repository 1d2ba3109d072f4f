package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int32 }

func (e statusErr) Error() string     { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) StatusCode() int32 { return e.code }

func TestFailKeepsKindAndStatus(t *testing.T) {
	err := Fail(ErrGPUHang, "WaitForSlot", fmt.Errorf("slot 1: %w", statusErr{code: 0x102}))

	assert.ErrorIs(t, err, ErrGPUHang)
	assert.NotErrorIs(t, err, ErrPresent)
	assert.Equal(t, int32(0x102), StatusOf(err))

	var re *RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "WaitForSlot", re.Op)
	assert.Contains(t, err.Error(), "0x00000102")
}

func TestDeviceCreationIsInitialization(t *testing.T) {
	err := Fail(ErrDeviceCreation, "CreateDevice", nil)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.Equal(t, int32(0), StatusOf(err))
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, DebugLevel, GetLogLevel())
	assert.Error(t, SetLogLevel("loud"))
	require.NoError(t, SetLogLevel("info"))
}

type counter struct{ n int }

func (c *counter) Release() { c.n++ }

func TestResourceTableReleasesOnce(t *testing.T) {
	rt := NewResourceTable()
	var order []string
	a := rt.Acquire("a", ReleaseFunc(func() { order = append(order, "a") }))
	rt.Acquire("b", ReleaseFunc(func() { order = append(order, "b") }))
	c := &counter{}
	rt.Acquire("c", c)

	name, ok := rt.Name(a)
	require.True(t, ok)
	assert.Equal(t, "a", name)

	require.NoError(t, rt.Release(a))
	assert.ErrorIs(t, rt.Release(a), ErrAlreadyReleased)

	assert.Equal(t, 2, rt.ReleaseAll())
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, c.n)
	assert.Equal(t, 0, rt.Live())
	assert.Equal(t, 0, rt.ReleaseAll())
}

func TestInputHandlersFireOnChange(t *testing.T) {
	in := NewInput()
	var got []KeyCode
	in.OnKey(func(key KeyCode, pressed bool) {
		if pressed {
			got = append(got, key)
		}
	})

	in.ProcessKey(KEY_ESCAPE, true)
	in.ProcessKey(KEY_ESCAPE, true)
	in.ProcessKey(KEYS_MAX_KEYS+1, true)
	assert.True(t, in.IsKeyDown(KEY_ESCAPE))
	assert.False(t, in.WasKeyDown(KEY_ESCAPE))

	in.Update()
	in.ProcessKey(KEY_ESCAPE, false)
	assert.True(t, in.WasKeyDown(KEY_ESCAPE))
	assert.True(t, in.IsKeyUp(KEY_ESCAPE))
	assert.Equal(t, []KeyCode{KEY_ESCAPE}, got)
}

func TestClockAndMetrics(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewClock()
	c.now = func() time.Time { return now }
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	now = now.Add(1500 * time.Millisecond)
	c.Update()
	assert.InDelta(t, 1.5, c.Elapsed(), 1e-9)

	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.02)
	}
	assert.InDelta(t, 20.0, m.FrameTime(), 1e-6)
	for i := 0; i < 25; i++ {
		m.Update(0.02)
	}
	assert.Equal(t, uint64(55), m.TotalFrames())
	assert.Greater(t, m.FPS(), 0.0)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 2, Clamp(1, 2, 3))
	assert.Equal(t, 3, Clamp(9, 2, 3))
	assert.Equal(t, 2.5, Clamp(2.5, 2.0, 3.0))
}
