package transport

import (
	"testing"
	"time"
)

func TestHeartbeatShouldPingAfterInterval(t *testing.T) {
	h := NewHeartbeat(10*time.Millisecond, time.Hour)
	if h.ShouldPing() {
		t.Error("ShouldPing() = true immediately after creation")
	}
	time.Sleep(15 * time.Millisecond)
	if !h.ShouldPing() {
		t.Error("ShouldPing() = false after the interval elapsed")
	}
}

func TestHeartbeatDeadAfterTimeout(t *testing.T) {
	h := NewHeartbeat(time.Hour, 10*time.Millisecond)
	if h.Dead() {
		t.Error("Dead() = true immediately after creation")
	}
	time.Sleep(15 * time.Millisecond)
	if !h.Dead() {
		t.Error("Dead() = false after the timeout elapsed")
	}
}

func TestHeartbeatNotePongResetsClock(t *testing.T) {
	h := NewHeartbeat(time.Hour, 10*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	h.NotePong()
	if h.Dead() {
		t.Error("Dead() = true right after NotePong")
	}
}
