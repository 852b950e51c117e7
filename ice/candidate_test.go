package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCandidatePriorityTypePreferences(t *testing.T) {
	host := candidatePriority(CandidateTypeHost, 1)
	prflx := candidatePriority(CandidateTypePeerReflexive, 1)
	srflx := candidatePriority(CandidateTypeServerReflexive, 1)
	relay := candidatePriority(CandidateTypeRelay, 1)

	require.Greater(t, host, prflx)
	require.Greater(t, prflx, srflx)
	require.Greater(t, srflx, relay)
}

func TestCandidatePriorityComponentOrdering(t *testing.T) {
	component1 := candidatePriority(CandidateTypeHost, 1)
	component2 := candidatePriority(CandidateTypeHost, 2)
	require.Greater(t, component1, component2, "lower component number must win ties")
}

func TestCandidateFoundationSharedByBaseAndType(t *testing.T) {
	f1 := candidateFoundation(CandidateTypeHost, "udp", "192.168.1.5")
	f2 := candidateFoundation(CandidateTypeHost, "udp", "192.168.1.5")
	f3 := candidateFoundation(CandidateTypeHost, "udp", "192.168.1.6")
	f4 := candidateFoundation(CandidateTypeServerReflexive, "udp", "192.168.1.5")

	require.Equal(t, f1, f2)
	require.NotEqual(t, f1, f3)
	require.NotEqual(t, f1, f4)
}

func TestMakeHostCandidate(t *testing.T) {
	ip := net.ParseIP("10.0.0.5")
	c := makeHostCandidate(1, ip, 4000)

	require.Equal(t, CandidateTypeHost, c.Type)
	require.Equal(t, 1, c.Component)
	require.Equal(t, "udp", c.Transport)
	require.Equal(t, 4000, c.Port)
	require.Equal(t, ip.String(), c.Host)
	require.Equal(t, candidatePriority(CandidateTypeHost, 1), c.Priority)
}

func TestMakeServerReflexiveCandidateCarriesRelatedAddress(t *testing.T) {
	base := makeHostCandidate(1, net.ParseIP("10.0.0.5"), 4000)
	mapped := &net.UDPAddr{IP: net.ParseIP("203.0.113.4"), Port: 9000}

	c := makeServerReflexiveCandidate(1, mapped, base)

	require.Equal(t, CandidateTypeServerReflexive, c.Type)
	require.Equal(t, mapped.IP.String(), c.IP.String())
	require.Equal(t, base.IP.String(), c.RelatedAddress.String())
	require.Equal(t, base.Port, c.RelatedPort)
}
