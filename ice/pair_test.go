package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPairPrioritySymmetricTieBreak(t *testing.T) {
	// Spec §8 law: swapping which side is G/D and which role is
	// controlling must yield the same priority.
	a := candidatePriority(CandidateTypeHost, 1)
	b := candidatePriority(CandidateTypeServerReflexive, 1)

	p1 := pairPriority(a, b, true)  // local=a is G (controlling)
	p2 := pairPriority(b, a, false) // remote=a is G (we're controlled, a is peer's priority... )

	require.Equal(t, p1, p2)
}

func TestPairPriorityOrdersByMin(t *testing.T) {
	low := pairPriority(10, 20, true)
	high := pairPriority(100, 20, true)
	require.Greater(t, high, low)
}

func TestCanBePaired(t *testing.T) {
	local4 := makeHostCandidate(1, net.ParseIP("10.0.0.1"), 1000)
	remote4 := makeHostCandidate(1, net.ParseIP("10.0.0.2"), 2000)
	remoteOtherComponent := makeHostCandidate(2, net.ParseIP("10.0.0.2"), 2000)

	require.True(t, canBePaired(local4, remote4))
	require.False(t, canBePaired(local4, remoteOtherComponent))
}

func TestCheckListSortedDescending(t *testing.T) {
	a := &Agent{controlling: true}
	low := newCandidatePair(makeHostCandidate(1, net.ParseIP("10.0.0.1"), 1), makeHostCandidate(1, net.ParseIP("10.0.0.2"), 1), true)
	low.priority = 1
	high := newCandidatePair(makeHostCandidate(1, net.ParseIP("10.0.0.3"), 1), makeHostCandidate(1, net.ParseIP("10.0.0.4"), 1), true)
	high.priority = 100
	a.checklist = []*CandidatePair{low, high}

	a.sortChecklist()

	require.True(t, a.checklist[0].priority >= a.checklist[1].priority)
}
