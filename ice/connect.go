package ice

import (
	"context"
	"net"
	"time"
)

// AddRemoteCandidate appends a candidate learned through signaling, or
// signals end-of-candidates when c is nil. Spec §4.1 add_remote_candidate.
func (a *Agent) AddRemoteCandidate(c *Candidate) error {
	if c == nil {
		return a.signalEndOfCandidates()
	}
	if c.Type == CandidateTypePeerReflexive {
		return newError(KindInvalidArgument, "peer-reflexive candidates cannot be added directly")
	}

	resolved := *c
	if isMDNSHostname(c.Host) {
		var resolver MDNSResolver
		_ = a.runSync(func(a *Agent) {
			resolver = a.ensureMDNS()
		})

		ctx, cancel := context.WithTimeout(context.Background(), gatherDeadline)
		ip, err := resolver.Resolve(ctx, c.Host)
		cancel()
		if err != nil {
			// Unresolved mDNS hostnames are silently dropped, spec §4.1.
			return nil
		}
		resolved.IP = ip
	} else if resolved.IP == nil {
		ip := net.ParseIP(c.Host)
		if ip == nil {
			return newError(KindInvalidArgument, "candidate host %q is not an IP literal or mdns name", c.Host)
		}
		resolved.IP = ip
	}

	return a.runSyncErr(func(a *Agent) error {
		if a.remoteEnd {
			return ErrEndOfCandidatesTwice
		}
		a.remoteCandidates = append(a.remoteCandidates, resolved)
		a.addPairsForRemote(resolved)
		return nil
	})
}

func (a *Agent) signalEndOfCandidates() error {
	return a.runSyncErr(func(a *Agent) error {
		if a.remoteEnd {
			return ErrEndOfCandidatesTwice
		}
		a.remoteEnd = true
		a.pruneUnseenComponents()
		a.evaluateChecklist()
		return nil
	})
}

// Connect forms any still-missing pairs, seeds the check list, drains
// buffered early checks, drives the periodic-check loop at a 20ms
// cadence, and blocks until ICE_COMPLETED or ICE_FAILED. Spec §4.1.
func (a *Agent) Connect(ctx context.Context) error {
	var (
		gatherOK bool
		haveCred bool
	)
	_ = a.runSync(func(a *Agent) {
		gatherOK = a.gatherDone
		haveCred = a.remoteUsername != "" && a.remotePassword != ""
	})
	if !gatherOK {
		return ErrNotGathered
	}
	if !haveCred {
		return ErrNoRemoteCredentials
	}

	if err := a.runSyncErr(func(a *Agent) error {
		a.formMissingPairs()
		a.unfreezeInitial()
		a.drainEarlyChecks()
		a.evaluateChecklist()
		return nil
	}); err != nil {
		return err
	}

	driverCtx, cancelDriver := context.WithCancel(ctx)
	defer cancelDriver()
	go a.periodicDriver(driverCtx)

	select {
	case result := <-a.checklistDoneCh:
		if result.event == EventConnected {
			_ = a.runSync(func(a *Agent) { a.startConsent() })
			a.postEvent(EventConnected)
			return nil
		}
		a.postEvent(EventFailed)
		return ErrNegotiationExhausted
	case <-ctx.Done():
		return ctx.Err()
	case <-a.closeCh:
		return ErrClosed
	}
}

// periodicDriver implements spec §4.1's periodic-check algorithm,
// ticking at periodicCheckTick until no more work may arrive.
func (a *Agent) periodicDriver(ctx context.Context) {
	ticker := time.NewTicker(periodicCheckTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			var more bool
			_ = a.runSync(func(a *Agent) {
				more = a.tick()
			})
			if !more {
				return
			}
		case <-ctx.Done():
			return
		case <-a.closeCh:
			return
		}
	}
}

// tick runs one iteration of the periodic-check algorithm, returning
// whether more work may still arrive.
func (a *Agent) tick() bool {
	if pair := a.nextCheckablePair(); pair != nil {
		a.startCheck(pair)
		return true
	}
	if !a.remoteEnd {
		return !a.checksDone
	}
	return false
}
