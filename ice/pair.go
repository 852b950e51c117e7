package ice

import "fmt"

// CandidatePairState tracks a pair's progress through the check list, per
// RFC 5245 §5.7.4.
type CandidatePairState int

const (
	PairFrozen CandidatePairState = iota
	PairWaiting
	PairInProgress
	PairSucceeded
	PairFailed
)

func (s CandidatePairState) String() string {
	switch s {
	case PairFrozen:
		return "frozen"
	case PairWaiting:
		return "waiting"
	case PairInProgress:
		return "in-progress"
	case PairSucceeded:
		return "succeeded"
	case PairFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CandidatePair is a candidate from each side, checked together for
// connectivity. See spec §3 and RFC 5245 §5.7.
type CandidatePair struct {
	Local  Candidate
	Remote Candidate

	priority  uint64
	state     CandidatePairState
	nominated bool

	// remoteNominated records that the peer's own check on this pair
	// carried USE-CANDIDATE, per RFC 5245 §7.2.1.5.
	remoteNominated bool

	// inFlight is set while a check task owns this pair, so a second
	// triggered check on the same pair is not scheduled concurrently.
	inFlight bool
}

func newCandidatePair(local, remote Candidate, controlling bool) *CandidatePair {
	p := &CandidatePair{Local: local, Remote: remote, state: PairFrozen}
	p.priority = pairPriority(local.Priority, remote.Priority, controlling)
	return p
}

func (p *CandidatePair) String() string {
	return fmt.Sprintf("%s <-> %s [%s]", p.Local, p.Remote, p.state)
}

func (p *CandidatePair) foundation() string {
	return p.Local.Foundation + ":" + p.Remote.Foundation
}

// pairPriority implements RFC 5245 §5.7.2: G is the controlling agent's
// candidate priority, D is the controlled agent's.
func pairPriority(localPriority, remotePriority uint32, controlling bool) uint64 {
	g, d := uint64(localPriority), uint64(remotePriority)
	if !controlling {
		g, d = d, g
	}
	min, max := g, d
	if min > max {
		min, max = max, min
	}
	result := (min << 32) + (max << 1)
	if g > d {
		result++
	}
	return result
}

// canBePaired implements RFC 5245 §5.7.1: same component, same transport
// protocol, same IP address family.
func canBePaired(local, remote Candidate) bool {
	if local.Component != remote.Component {
		return false
	}
	if local.Transport != remote.Transport {
		return false
	}
	return local.isIPv4() == remote.isIPv4()
}
