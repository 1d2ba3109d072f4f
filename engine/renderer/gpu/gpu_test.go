package gpu

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventAutoReset(t *testing.T) {
	ev := NewEvent()
	assert.False(t, ev.Wait(time.Millisecond))

	ev.Signal()
	ev.Signal()
	assert.True(t, ev.Wait(time.Millisecond))
	assert.False(t, ev.Wait(time.Millisecond))

	ev.Signal()
	ev.Reset()
	assert.False(t, ev.Wait(time.Millisecond))
}

func TestEventWakesBlockedWaiter(t *testing.T) {
	ev := NewEvent()
	time.AfterFunc(5*time.Millisecond, ev.Signal)
	assert.True(t, ev.Wait(time.Second))
}

func TestStatusError(t *testing.T) {
	var err error = NewStatusError("Present", StatusDeviceRemoved, "lost")
	var se *StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, uint32(0x887A0005), se.Code)
	assert.Equal(t, int32(-2005270523), se.StatusCode())
	assert.Equal(t, "Present failed with 0x887A0005: lost", err.Error())
}

func TestFeatureLevelString(t *testing.T) {
	assert.Equal(t, "11_0", FeatureLevel11_0.String())
	assert.Equal(t, "12_1", FeatureLevel12_1.String())
	assert.Equal(t, uint32(12), FormatR32G32B32Float.Size())
}
