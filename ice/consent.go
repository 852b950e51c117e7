package ice

import (
	"context"
	"time"

	"github.com/pion/stun/v3"
)

const (
	consentInterval  = 5 * time.Second
	consentFailures  = 6
	consentJitterLo  = 0.8
	consentJitterHi  = 1.2
)

// startConsent launches the RFC 7675 consent-freshness loop once
// ICE_COMPLETED fires. Spec §4.4.
func (a *Agent) startConsent() {
	ctx, cancel := context.WithCancel(context.Background())
	a.consentCancel = cancel
	go a.runConsent(ctx)
}

func (a *Agent) runConsent(ctx context.Context) {
	failures := make(map[int]int)
	for {
		interval := time.Duration(float64(consentInterval) * mathRandFloat(consentJitterLo, consentJitterHi))
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}

		type target struct {
			component int
			pair      *CandidatePair
			ep        *endpoint
		}
		var targets []target
		_ = a.runSync(func(a *Agent) {
			for comp, pair := range a.nominated {
				ep := a.findEndpoint(pair.Local)
				if ep != nil {
					targets = append(targets, target{component: comp, pair: pair, ep: ep})
				}
			}
		})

		for _, t := range targets {
			ok := a.sendConsentRequest(ctx, t.ep, t.pair)

			var shouldClose bool
			_ = a.runSync(func(a *Agent) {
				if ok {
					failures[t.component] = 0
					return
				}
				failures[t.component]++
				if failures[t.component] >= consentFailures {
					shouldClose = true
				}
			})
			if shouldClose {
				go a.Close()
				return
			}
		}
	}
}

// sendConsentRequest issues a single authenticated binding request with
// no retransmissions, per spec §4.4.
func (a *Agent) sendConsentRequest(ctx context.Context, ep *endpoint, pair *CandidatePair) bool {
	m, err := a.buildCheckRequest(pair, a.controlling, false)
	if err != nil {
		return false
	}
	resp, respAddr, err := ep.request(ctx, m, pair.Remote.addr(), 0)
	if err != nil {
		return false
	}
	if resp.Type.Class != stun.ClassSuccessResponse {
		return false
	}
	return sameHostPort(respAddr, pair.Remote.addr())
}
