package ice

import (
	"context"
	"net"

	"github.com/pion/stun/v3"
)

const checkRetransmissions = 7

// startCheck transitions pair to InProgress and fires its STUN binding
// request asynchronously; the response re-enters the agent loop through
// postTask. Spec §4.1 check_start.
func (a *Agent) startCheck(pair *CandidatePair) {
	if pair.inFlight {
		return
	}
	pair.state = PairInProgress
	pair.inFlight = true

	ep := a.findEndpoint(pair.Local)
	if ep == nil {
		pair.state = PairFailed
		pair.inFlight = false
		a.checkComplete(pair)
		return
	}

	sendControlling := a.controlling
	aggressive := a.controlling && a.remoteIsLite
	m, err := a.buildCheckRequest(pair, sendControlling, aggressive)
	if err != nil {
		pair.state = PairFailed
		pair.inFlight = false
		a.checkComplete(pair)
		return
	}
	addr := pair.Remote.addr()

	go func() {
		resp, respAddr, reqErr := ep.request(context.Background(), m, addr, checkRetransmissions)
		a.postTask(func(a *Agent) {
			a.handleCheckResult(pair, sendControlling, aggressive, resp, respAddr, reqErr)
		})
	}()
}

func (a *Agent) buildCheckRequest(pair *CandidatePair, controlling bool, useCandidate bool) (*stun.Message, error) {
	setters := []stun.Setter{
		stun.TransactionID,
		stun.BindingRequest,
		stun.NewUsername(a.remoteUsername + ":" + a.localUsername),
		priorityAttr(peerReflexivePriority(pair.Local.Component)),
		tieBreakerAttr{controlling: controlling, value: a.tieBreaker},
	}
	if useCandidate {
		setters = append(setters, useCandidateAttr{})
	}
	setters = append(setters, stun.NewShortTermIntegrity(a.remotePassword), stun.Fingerprint)

	m := new(stun.Message)
	if err := stun.Build(m, setters...); err != nil {
		return nil, err
	}
	return m, nil
}

// postTask submits f to the agent loop from outside it, dropping the
// submission silently if the agent has already closed.
func (a *Agent) postTask(f func(*Agent)) {
	select {
	case a.taskCh <- func() { f(a) }:
	case <-a.closeCh:
	}
}

func (a *Agent) handleCheckResult(pair *CandidatePair, sentControlling, sentUseCandidate bool, resp *stun.Message, respAddr net.Addr, reqErr error) {
	pair.inFlight = false
	if a.closed {
		return
	}

	if reqErr != nil {
		pair.state = PairFailed
		a.checkComplete(pair)
		return
	}

	if resp.Type.Class == stun.ClassErrorResponse {
		var codeAttr stun.ErrorCodeAttribute
		if codeAttr.GetFrom(resp) == nil && codeAttr.Code == roleConflictCode {
			// Flip to the opposite of whichever role attribute we sent
			// and retry the same pair, per spec §4.1/RFC 5245 §7.1.2.2.
			a.controlling = !sentControlling
			a.sortChecklist()
			a.startCheck(pair)
			return
		}
		pair.state = PairFailed
		a.checkComplete(pair)
		return
	}

	if !sameHostPort(respAddr, pair.Remote.addr()) {
		pair.state = PairFailed
		a.checkComplete(pair)
		return
	}

	if sentUseCandidate || pair.remoteNominated {
		pair.nominated = true
		pair.state = PairSucceeded
		a.checkComplete(pair)
		return
	}

	if a.controlling && !a.remoteIsLite && !a.nominating[pair.Local.Component] {
		a.nominating[pair.Local.Component] = true
		a.sendNominationRequest(pair)
		return
	}

	pair.state = PairSucceeded
	a.checkComplete(pair)
}

// sendNominationRequest issues the second, regular-nomination binding
// request carrying USE-CANDIDATE, per spec §4.1.
func (a *Agent) sendNominationRequest(pair *CandidatePair) {
	ep := a.findEndpoint(pair.Local)
	if ep == nil {
		pair.state = PairFailed
		a.checkComplete(pair)
		return
	}
	m, err := a.buildCheckRequest(pair, a.controlling, true)
	if err != nil {
		pair.state = PairFailed
		a.checkComplete(pair)
		return
	}
	addr := pair.Remote.addr()
	pair.inFlight = true

	go func() {
		resp, respAddr, reqErr := ep.request(context.Background(), m, addr, checkRetransmissions)
		a.postTask(func(a *Agent) {
			pair.inFlight = false
			if a.closed {
				return
			}
			if reqErr != nil || resp.Type.Class == stun.ClassErrorResponse || !sameHostPort(respAddr, pair.Remote.addr()) {
				pair.state = PairFailed
				a.checkComplete(pair)
				return
			}
			pair.nominated = true
			pair.state = PairSucceeded
			a.checkComplete(pair)
		})
	}()
}

// checkComplete handles global check-list progression once pair reaches
// a terminal state. Spec §4.1 check_complete.
func (a *Agent) checkComplete(pair *CandidatePair) {
	if pair.state == PairSucceeded && pair.nominated {
		a.installNominated(pair.Local.Component, pair)
	}
	if pair.state == PairSucceeded {
		a.unfreezeByFoundation(pair.Local.Foundation)
	}
	a.evaluateChecklist()
}

// evaluateChecklist resolves the checklist as connected or failed once
// its outcome is known, whether or not a check just completed. It must
// also be called after any mutation that can exhaust the checklist
// without running a check — e.g. pruning a component down to none, or
// entering Connect with an already-empty/already-resolved checklist —
// so a negotiation with no pairable candidates resolves promptly
// instead of riding the caller's context to a timeout.
func (a *Agent) evaluateChecklist() {
	if a.checksDone {
		return
	}
	if len(a.activeComponents) > 0 && a.allActiveComponentsNominated() {
		a.checksDone = true
		a.signalChecklist(EventConnected)
		return
	}
	if a.checklistExhausted() {
		if a.controlling || !a.anyComponentSucceeded() {
			a.checksDone = true
			a.signalChecklist(EventFailed)
		}
	}
}

func (a *Agent) checklistExhausted() bool {
	for _, p := range a.checklist {
		if p.state != PairSucceeded && p.state != PairFailed {
			return false
		}
	}
	return true
}

func (a *Agent) anyComponentSucceeded() bool {
	for _, p := range a.checklist {
		if p.state == PairSucceeded {
			return true
		}
	}
	return false
}

func (a *Agent) signalChecklist(kind EventKind) {
	select {
	case a.checklistDoneCh <- checklistResult{event: kind}:
	default:
	}
}

func sameHostPort(a, b net.Addr) bool {
	au, aok := a.(*net.UDPAddr)
	bu, bok := b.(*net.UDPAddr)
	if aok && bok {
		return au.IP.Equal(bu.IP) && au.Port == bu.Port
	}
	return a.String() == b.String()
}

// checkIncoming handles an authenticated inbound binding request after
// role-conflict resolution, per spec §4.1 check_incoming.
func (a *Agent) checkIncoming(m *stun.Message, addr net.Addr, ep *endpoint) {
	component := ep.component
	var remote *Candidate
	for i := range a.remoteCandidates {
		if a.remoteCandidates[i].Component == component && sameHostPort(a.remoteCandidates[i].addr(), addr) {
			remote = &a.remoteCandidates[i]
			break
		}
	}
	if remote == nil {
		priority, _ := getPriority(m)
		udpAddr, _ := addr.(*net.UDPAddr)
		if udpAddr == nil {
			return
		}
		c := makePeerReflexiveCandidate(component, udpAddr, priority)
		a.remoteCandidates = append(a.remoteCandidates, c)
		remote = &a.remoteCandidates[len(a.remoteCandidates)-1]
	}

	var local *localCandidate
	for _, lc := range a.localCandidates {
		if lc.endpoint == ep {
			local = lc
			break
		}
	}
	if local == nil {
		return
	}

	pair := a.findPair(local.candidate, *remote)
	isNew := pair == nil
	if pair == nil {
		pair = newCandidatePair(local.candidate, *remote, a.controlling)
		pair.state = PairWaiting
		a.checklist = append(a.checklist, pair)
		a.sortChecklist()
	}

	if hasUseCandidate(m) && !a.controlling {
		pair.remoteNominated = true
		if pair.state == PairSucceeded {
			pair.nominated = true
			a.checkComplete(pair)
		}
	}

	if isNew || pair.state == PairWaiting || pair.state == PairFailed {
		a.startCheck(pair)
	}
}
