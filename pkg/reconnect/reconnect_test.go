package reconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultReconnectBackoffGrowsAndCaps(t *testing.T) {
	assert.Equal(t, time.Second, defaultReconnectBackoff(0))
	assert.Equal(t, 2*time.Second, defaultReconnectBackoff(1))
	assert.Equal(t, 4*time.Second, defaultReconnectBackoff(2))
	assert.Equal(t, 30*time.Second, defaultReconnectBackoff(10))
}

func TestGracefulShutdownReturnsFalseWhenBothChildrenStopInTime(t *testing.T) {
	s := &Supervisor{shutdownGrace: time.Second}

	controlDone := make(chan struct{})
	supervisorDone := make(chan struct{})
	go func() { close(controlDone) }()
	go func() { close(supervisorDone) }()

	controlCancelled := false
	supervisorCancelled := false

	exceeded := s.gracefulShutdown(
		func() { controlCancelled = true },
		func() { supervisorCancelled = true },
		controlDone, supervisorDone,
	)

	assert.False(t, exceeded)
	assert.True(t, controlCancelled)
	assert.True(t, supervisorCancelled)
}

func TestGracefulShutdownExceedsBudgetWhenControlNeverStops(t *testing.T) {
	s := &Supervisor{shutdownGrace: 20 * time.Millisecond}

	controlDone := make(chan struct{}) // never closed
	supervisorDone := make(chan struct{})

	exceeded := s.gracefulShutdown(
		func() {},
		func() {},
		controlDone, supervisorDone,
	)

	assert.True(t, exceeded)
}
