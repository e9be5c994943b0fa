package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{
			name:     "no UUIDs",
			err:      &NotFoundError{Resource: "service"},
			expected: "service not found",
		},
		{
			name:     "service UUID",
			err:      &NotFoundError{Resource: "service", UUIDs: []string{"ae563286"}},
			expected: `service "ae563286" not found`,
		},
		{
			name:     "characteristic in service",
			err:      &NotFoundError{Resource: "characteristic", UUIDs: []string{"ae563286", "e3956242"}},
			expected: `characteristic "e3956242" not found in service "ae563286"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConnectionError(t *testing.T) {
	wrapped := fmt.Errorf("%w: link lost", ErrNotConnected)

	assert.True(t, errors.Is(wrapped, ErrNotConnected))
	assert.False(t, errors.Is(wrapped, ErrAlreadyConnected))

	assert.Equal(t, "not_connected", ErrNotConnected.Error())
	assert.Equal(t, "not_initialized: no radio", (&ConnectionError{State: NotInitialized, Msg: "no radio"}).Error())

	var nilErr *ConnectionError
	assert.Equal(t, "<nil>", nilErr.Error())
	assert.False(t, nilErr.Is(ErrNotConnected))
}

func TestPeer(t *testing.T) {
	p := Peer{
		Address:  "AA:BB:CC:DD:EE:FF",
		Services: []string{"180f", "ae563286b11449aeaab33cc37bbfe46a"},
	}

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", p.Label())
	p.Name = "RC-Car"
	assert.Equal(t, "RC-Car", p.Label())

	assert.True(t, p.Advertises("AE563286-B114-49AE-AAB3-3CC37BBFE46A"))
	assert.True(t, p.Advertises("0000180f-0000-1000-8000-00805f9b34fb"))
	assert.False(t, p.Advertises("180d"))
}
