package ice

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// loopbackHostSource overrides the default interface enumeration (which
// excludes loopback) so tests can exercise the full agent over 127.0.0.1
// without a real non-loopback interface being available in CI.
type loopbackHostSource struct{}

func (loopbackHostSource) LocalAddresses(useIPv4, useIPv6 bool) ([]net.IP, error) {
	return []net.IP{net.ParseIP("127.0.0.1")}, nil
}

// noopMDNS never matches any hostname; used so tests don't touch the
// real multicast mDNS singleton.
type noopMDNS struct{}

func (noopMDNS) IsMDNSHostname(string) bool                                  { return false }
func (noopMDNS) Resolve(context.Context, string) (net.IP, error)             { return nil, ErrClosed }

func newTestAgent(t *testing.T, controlling bool) *Agent {
	t.Helper()
	a, err := NewAgent(AgentConfig{
		Controlling:       controlling,
		HostAddressSource: loopbackHostSource{},
		MDNSResolver:      noopMDNS{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func exchangeCandidates(t *testing.T, a, b *Agent) {
	t.Helper()
	require.NoError(t, a.SetRemoteCredentials(b.LocalUsername(), b.LocalPassword()))
	require.NoError(t, b.SetRemoteCredentials(a.LocalUsername(), a.LocalPassword()))

	for _, c := range a.LocalCandidates() {
		require.NoError(t, b.AddRemoteCandidate(&c))
	}
	for _, c := range b.LocalCandidates() {
		require.NoError(t, a.AddRemoteCandidate(&c))
	}
	require.NoError(t, a.AddRemoteCandidate(nil))
	require.NoError(t, b.AddRemoteCandidate(nil))
}

func TestTwoAgentsConnectOverLoopback(t *testing.T) {
	controlling := newTestAgent(t, true)
	controlled := newTestAgent(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, controlling.GatherCandidates(ctx))
	require.NoError(t, controlled.GatherCandidates(ctx))

	exchangeCandidates(t, controlling, controlled)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer connectCancel()

	errCh := make(chan error, 2)
	go func() { errCh <- controlling.Connect(connectCtx) }()
	go func() { errCh <- controlled.Connect(connectCtx) }()

	require.NoError(t, <-errCh)
	require.NoError(t, <-errCh)

	require.NoError(t, controlling.SendTo([]byte("ping"), 1))

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer recvCancel()
	data, err := controlled.RecvFrom(recvCtx, 1)
	require.NoError(t, err)
	require.Equal(t, "ping", string(data))
}

func TestRecvBeforeConnectFailsNotReady(t *testing.T) {
	a := newTestAgent(t, true)
	_, err := a.RecvFrom(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoNominatedPair)
}

func TestEndOfCandidatesRejectsSecondCall(t *testing.T) {
	a := newTestAgent(t, true)
	require.NoError(t, a.AddRemoteCandidate(nil))
	err := a.AddRemoteCandidate(nil)
	require.ErrorIs(t, err, ErrEndOfCandidatesTwice)
}

func TestGatherCandidatesIsIdempotent(t *testing.T) {
	a := newTestAgent(t, true)
	ctx := context.Background()
	require.NoError(t, a.GatherCandidates(ctx))
	firstCount := len(a.LocalCandidates())
	require.NoError(t, a.GatherCandidates(ctx))
	require.Equal(t, firstCount, len(a.LocalCandidates()))
}

func TestCloseIsIdempotentAndEmitsOneClosedEvent(t *testing.T) {
	a := newTestAgent(t, true)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.Len(t, a.events, 1)
	require.Equal(t, EventClosed, (<-a.events).Kind)
}
