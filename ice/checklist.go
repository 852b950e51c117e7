package ice

import "sort"

// sortChecklist re-orders the check list by descending pair priority,
// recomputed for the current role. Spec §3: re-sorted whenever pairs are
// added or the role changes.
func (a *Agent) sortChecklist() {
	for _, p := range a.checklist {
		p.priority = pairPriority(p.Local.Priority, p.Remote.Priority, a.controlling)
	}
	sort.SliceStable(a.checklist, func(i, j int) bool {
		return a.checklist[i].priority > a.checklist[j].priority
	})
}

func (a *Agent) findPair(local Candidate, remote Candidate) *CandidatePair {
	for _, p := range a.checklist {
		if p.Local.Component == local.Component && p.Local.IP.Equal(local.IP) && p.Local.Port == local.Port &&
			p.Remote.IP.Equal(remote.IP) && p.Remote.Port == remote.Port {
			return p
		}
	}
	return nil
}

// addPairsForRemote pairs a newly learned remote candidate against every
// local candidate whose canBePaired predicate holds, inserting new pairs
// into the check list. Spec §4.1 add_remote_candidate.
func (a *Agent) addPairsForRemote(remote Candidate) {
	for _, lc := range a.localCandidates {
		if !canBePaired(lc.candidate, remote) {
			continue
		}
		if a.findPair(lc.candidate, remote) != nil {
			continue
		}
		a.checklist = append(a.checklist, newCandidatePair(lc.candidate, remote, a.controlling))
	}
	a.sortChecklist()
}

// formMissingPairs builds the Cartesian product of pairable local
// endpoints and known remote candidates, skipping pairs that already
// exist. Called from Connect, spec §4.1.
func (a *Agent) formMissingPairs() {
	for _, lc := range a.localCandidates {
		for _, rc := range a.remoteCandidates {
			if !canBePaired(lc.candidate, rc) {
				continue
			}
			if a.findPair(lc.candidate, rc) != nil {
				continue
			}
			a.checklist = append(a.checklist, newCandidatePair(lc.candidate, rc, a.controlling))
		}
	}
	a.sortChecklist()
}

// unfreezeInitial seeds the periodic-check loop: the first pair of the
// lowest-numbered component is unfrozen, then every other pair in that
// component whose local foundation has not yet been seen. Spec §4.1.
func (a *Agent) unfreezeInitial() {
	if len(a.checklist) == 0 {
		return
	}
	lowestComponent := a.checklist[0].Local.Component
	for _, p := range a.checklist {
		if p.Local.Component < lowestComponent {
			lowestComponent = p.Local.Component
		}
	}

	seenFoundations := make(map[string]bool)
	first := true
	for _, p := range a.checklist {
		if p.Local.Component != lowestComponent {
			continue
		}
		if first {
			if p.state == PairFrozen {
				p.state = PairWaiting
			}
			seenFoundations[p.Local.Foundation] = true
			first = false
			continue
		}
		if !seenFoundations[p.Local.Foundation] {
			if p.state == PairFrozen {
				p.state = PairWaiting
			}
			seenFoundations[p.Local.Foundation] = true
		}
	}
}

// unfreezeByFoundation unfreezes every Frozen pair sharing the given
// local foundation, per RFC 5245 §7.1.3.2.3 (spec §4.1 check_complete).
func (a *Agent) unfreezeByFoundation(foundation string) {
	for _, p := range a.checklist {
		if p.state == PairFrozen && p.Local.Foundation == foundation {
			p.state = PairWaiting
		}
	}
}

// nextCheckablePair implements the periodic-check algorithm of spec
// §4.1: pick highest-priority Waiting, else highest-priority Frozen.
// The check list is kept sorted by priority, so the first match wins.
func (a *Agent) nextCheckablePair() *CandidatePair {
	for _, p := range a.checklist {
		if p.state == PairWaiting {
			return p
		}
	}
	for _, p := range a.checklist {
		if p.state == PairFrozen {
			return p
		}
	}
	return nil
}

// pruneUnseenComponents implements end-of-candidates pruning: components
// never referenced by any remote candidate are dropped from the active
// set, per spec §3/§4.1.
func (a *Agent) pruneUnseenComponents() {
	seen := make(map[int]bool)
	for _, rc := range a.remoteCandidates {
		seen[rc.Component] = true
	}
	for c := range a.activeComponents {
		if !seen[c] {
			delete(a.activeComponents, c)
		}
	}
}

func (a *Agent) allActiveComponentsNominated() bool {
	for c := range a.activeComponents {
		if _, ok := a.nominated[c]; !ok {
			return false
		}
	}
	return true
}

func (a *Agent) installNominated(component int, pair *CandidatePair) {
	if existing, ok := a.nominated[component]; ok && existing.priority >= pair.priority {
		return
	}
	a.nominated[component] = pair
	for _, p := range a.checklist {
		if p == pair || p.Local.Component != component {
			continue
		}
		if p.state == PairWaiting || p.state == PairFrozen {
			p.state = PairFailed
		}
	}
}
