package netlinkerr

import (
	"fmt"
	"testing"
)

func TestProtocolErrorMessage(t *testing.T) {
	err := NewProtocolError("ournet", "bad password", nil)
	want := "protocol error on ournet: bad password"
	if err.Error() != want {
		t.Errorf("Error() = %q, wanted %q", err.Error(), want)
	}
}

func TestProtocolErrorWrapsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := NewProtocolError("ournet", "read failed", cause)

	if err.Unwrap() == nil {
		t.Fatal("Unwrap() = nil, wanted non-nil")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("channel", "#test")
	want := "channel not found: #test"
	if err.Error() != want {
		t.Errorf("Error() = %q, wanted %q", err.Error(), want)
	}
}

func TestNotSupportedError(t *testing.T) {
	err := NewNotSupportedError("ngircd", "spawn_server")
	want := "ngircd does not support spawn_server"
	if err.Error() != want {
		t.Errorf("Error() = %q, wanted %q", err.Error(), want)
	}
}
