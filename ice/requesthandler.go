package ice

import (
	"net"

	"github.com/pion/stun/v3"
)

// onSTUNRequest implements endpointObserver; it is called from an
// endpoint's read-loop goroutine, so it only ever submits work onto the
// agent loop (spec §4.3 inbound request handling).
func (a *Agent) onSTUNRequest(ep *endpoint, m *stun.Message, raw []byte, addr net.Addr) {
	a.postTask(func(a *Agent) {
		a.handleSTUNRequest(m, raw, addr, ep)
	})
}

func (a *Agent) onData(ep *endpoint, data []byte, addr net.Addr) {
	a.postTask(func(a *Agent) {
		select {
		case a.inbound <- inboundDatum{component: ep.component, data: data, addr: addr}:
		default:
		}
	})
}

func (a *Agent) onEndpointClosed(ep *endpoint) {
	a.postTask(func(a *Agent) {
		select {
		case a.inbound <- inboundDatum{component: ep.component, lost: true}:
		default:
		}
	})
}

// handleSTUNRequest authenticates an inbound binding request, resolves
// any ICE role conflict, and either dispatches it to checkIncoming or
// buffers it as an early check. Spec §4.3.
func (a *Agent) handleSTUNRequest(m *stun.Message, raw []byte, addr net.Addr, ep *endpoint) {
	if a.closed {
		return
	}

	reparsed := &stun.Message{Raw: raw}
	if err := reparsed.Decode(); err != nil {
		a.sendErrorResponse(ep, m, addr, stun.CodeBadRequest)
		return
	}
	if err := stun.MessageIntegrity(a.localPassword).Check(reparsed); err != nil {
		a.sendErrorResponse(ep, m, addr, stun.CodeBadRequest)
		return
	}
	username, ok := getUsername(reparsed)
	if !ok {
		a.sendErrorResponse(ep, m, addr, stun.CodeBadRequest)
		return
	}
	if a.remoteUsername != "" {
		expected := a.localUsername + ":" + a.remoteUsername
		if username != expected {
			a.sendErrorResponse(ep, m, addr, stun.CodeBadRequest)
			return
		}
	}

	if controlling, tieBreaker, present := getControlAttr(m); present {
		if conflict := a.resolveRoleConflict(controlling, tieBreaker); conflict {
			a.sendErrorResponse(ep, m, addr, roleConflictCode)
			return
		}
	}

	a.sendBindingSuccess(ep, m, addr)

	if !a.earlyChecksDone {
		a.earlyChecks = append(a.earlyChecks, bufferedCheck{msg: m, addr: addr, endpoint: ep})
		return
	}
	a.checkIncoming(m, addr, ep)
}

// resolveRoleConflict implements spec §4.3's role-conflict table.
// Returns true if the peer's request must be rejected with 487.
func (a *Agent) resolveRoleConflict(peerControlling bool, peerTieBreaker uint64) bool {
	if a.controlling && peerControlling {
		if a.tieBreaker >= peerTieBreaker {
			return true
		}
		a.controlling = false
		a.sortChecklist()
		return false
	}
	if !a.controlling && !peerControlling {
		if a.tieBreaker < peerTieBreaker {
			return true
		}
		a.controlling = true
		a.sortChecklist()
		return false
	}
	return false
}

func (a *Agent) sendBindingSuccess(ep *endpoint, req *stun.Message, addr net.Addr) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}
	resp := new(stun.Message)
	_ = stun.Build(resp, req, stun.BindingSuccess,
		&stun.XORMappedAddress{IP: udpAddr.IP, Port: udpAddr.Port},
		stun.NewShortTermIntegrity(a.localPassword),
		stun.Fingerprint,
	)
	_ = ep.sendSTUN(resp, addr)
}

func (a *Agent) sendErrorResponse(ep *endpoint, req *stun.Message, addr net.Addr, code stun.ErrorCode) {
	resp := new(stun.Message)
	_ = stun.Build(resp, req, stun.BindingError,
		&stun.ErrorCodeAttribute{Code: code},
		stun.Fingerprint,
	)
	_ = ep.sendSTUN(resp, addr)
}

// drainEarlyChecks dispatches every buffered inbound check once the
// check list exists, per spec §4.1 connect().
func (a *Agent) drainEarlyChecks() {
	a.earlyChecksDone = true
	buffered := a.earlyChecks
	a.earlyChecks = nil
	for _, bc := range buffered {
		a.checkIncoming(bc.msg, bc.addr, bc.endpoint)
	}
}
