package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServicesValidation(t *testing.T) {
	_, err := NewServices(0, time.Second)
	assert.Error(t, err)

	_, err = NewServices(time.Second, time.Second)
	assert.Error(t, err)

	s, err := NewServices(time.Second, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, s.Timeout)
}

func TestMonitorTimesOutQuietTarget(t *testing.T) {
	s := &Services{Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond}
	timedOut := make(chan string, 1)
	m := s.NewMonitor(func(target string) { timedOut <- target })
	defer m.Stop()

	m.Monitor("runner")

	select {
	case target := <-timedOut:
		assert.Equal(t, "runner", target)
	case <-time.After(2 * time.Second):
		t.Fatal("target did not time out")
	}
}

func TestMonitorHeartbeatsKeepTargetAlive(t *testing.T) {
	s := &Services{Interval: 10 * time.Millisecond, Timeout: 100 * time.Millisecond}
	var fired atomic.Int32
	m := s.NewMonitor(func(string) { fired.Add(1) })
	defer m.Stop()

	m.Monitor("runner")
	for i := 0; i < 15; i++ {
		time.Sleep(20 * time.Millisecond)
		m.ReceiveHeartbeat("runner")
	}
	assert.Equal(t, int32(0), fired.Load())
}

func TestMonitorUnmonitorAndStop(t *testing.T) {
	s := &Services{Interval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond}
	var fired atomic.Int32
	m := s.NewMonitor(func(string) { fired.Add(1) })

	m.Monitor("a")
	m.Monitor("b")
	m.Unmonitor("a")
	m.Stop()
	m.Monitor("c")
	m.ReceiveHeartbeat("unknown")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
