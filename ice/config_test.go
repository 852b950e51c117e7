package ice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithDefaultsGeneratesCredentials(t *testing.T) {
	c := AgentConfig{Controlling: true}
	require.NoError(t, c.initWithDefaults())
	require.Len(t, c.LocalUsername, ufragLength)
	require.Len(t, c.LocalPassword, pwdLength)
	require.Equal(t, 1, c.Components)
}

func TestInitWithDefaultsRejectsShortUfrag(t *testing.T) {
	c := AgentConfig{Controlling: true, LocalUsername: "abc"}
	err := c.initWithDefaults()
	require.Error(t, err)
	var iceErr *Error
	require.ErrorAs(t, err, &iceErr)
	require.Equal(t, KindInvalidArgument, iceErr.Kind)
}

func TestInitWithDefaultsRejectsShortPassword(t *testing.T) {
	c := AgentConfig{Controlling: true, LocalPassword: strings.Repeat("a", 21)}
	err := c.initWithDefaults()
	require.Error(t, err)
}

func TestRelayPolicyRequiresServer(t *testing.T) {
	c := AgentConfig{Controlling: true, TransportPolicy: TransportPolicyRelay}
	err := c.initWithDefaults()
	require.Error(t, err)
}

func TestRelayPolicyAcceptsStunServer(t *testing.T) {
	c := AgentConfig{
		Controlling:     true,
		TransportPolicy: TransportPolicyRelay,
		StunServer:      &StunServerConfig{Addr: "stun.example.com:3478"},
	}
	require.NoError(t, c.initWithDefaults())
}
