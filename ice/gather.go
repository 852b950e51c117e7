package ice

import (
	"context"
	"net"
	"sync"

	"github.com/pion/stun/v3"
	"github.com/pion/transport/v4"
	"github.com/pkg/errors"
)

type hostResult struct {
	candidate Candidate
	ep        *endpoint
}

// GatherCandidates enumerates local host addresses, binds a UDP socket
// per component×address, and then in parallel (bounded by a 5s
// deadline) queries a configured STUN server for each IPv4 host
// endpoint's reflexive address and performs one TURN allocation per
// component if configured. Idempotent: the second call is a no-op. Spec §4.1.
func (a *Agent) GatherCandidates(ctx context.Context) error {
	var already bool
	_ = a.runSync(func(a *Agent) {
		if a.gatherStarted {
			already = true
			return
		}
		a.gatherStarted = true
	})
	if already {
		return nil
	}

	ips, err := a.config.HostAddressSource.LocalAddresses(a.config.UseIPv4, a.config.UseIPv6)
	if err != nil {
		return errors.Wrap(err, "ice: enumerate host addresses")
	}

	var hosts []hostResult
	for comp := 1; comp <= a.config.Components; comp++ {
		for _, ip := range ips {
			conn, err := bindUDP(a.config.Net, ip, a.config.EphemeralPorts)
			if err != nil {
				continue // gathering subtask failure is silently dropped, spec §7
			}
			ep := newEndpoint(comp, conn, a, a.log)
			port := conn.LocalAddr().(*net.UDPAddr).Port
			hosts = append(hosts, hostResult{candidate: makeHostCandidate(comp, ip, port), ep: ep})
		}
	}

	if err := a.runSync(func(a *Agent) {
		for _, h := range hosts {
			a.localCandidates = append(a.localCandidates, &localCandidate{candidate: h.candidate, endpoint: h.ep})
		}
	}); err != nil {
		return err
	}

	gatherCtx, cancel := context.WithTimeout(ctx, gatherDeadline)
	defer cancel()

	var wg sync.WaitGroup
	if a.config.StunServer != nil {
		for _, h := range hosts {
			if !h.candidate.isIPv4() {
				continue
			}
			wg.Add(1)
			go func(h hostResult) {
				defer wg.Done()
				c, ok := a.querySrflx(gatherCtx, h.ep, h.candidate)
				if !ok {
					return
				}
				_ = a.runSync(func(a *Agent) {
					a.localCandidates = append(a.localCandidates, &localCandidate{candidate: c, endpoint: h.ep})
				})
			}(h)
		}
	}
	if a.config.TurnServer != nil {
		for comp := 1; comp <= a.config.Components; comp++ {
			wg.Add(1)
			go func(comp int) {
				defer wg.Done()
				a.gatherRelay(gatherCtx, comp)
			}(comp)
		}
	}
	wg.Wait()

	return a.runSyncErr(func(a *Agent) error {
		a.gatherDone = true
		return nil
	})
}

// bindUDP opens a UDP socket on ip through netImpl, retrying over ports
// if provided. Routed through transport.Net (rather than calling
// net.ListenUDP directly) so tests can substitute a virtual network.
func bindUDP(netImpl transport.Net, ip net.IP, ports []int) (net.PacketConn, error) {
	if len(ports) == 0 {
		return netImpl.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: 0})
	}
	var lastErr error
	for _, p := range ports {
		conn, err := netImpl.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: p})
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "ice: bind host UDP socket")
}

// querySrflx sends a STUN binding request to the configured STUN server
// through ep and builds a server-reflexive candidate from the
// XOR-MAPPED-ADDRESS in the response. Grounded on
// internal/ice/base.go:queryStunServer.
func (a *Agent) querySrflx(ctx context.Context, ep *endpoint, base Candidate) (Candidate, bool) {
	serverAddr, err := net.ResolveUDPAddr("udp4", a.config.StunServer.Addr)
	if err != nil {
		return Candidate{}, false
	}
	m := new(stun.Message)
	if err := stun.Build(m, stun.TransactionID, stun.BindingRequest, stun.Fingerprint); err != nil {
		return Candidate{}, false
	}
	resp, _, err := ep.request(ctx, m, serverAddr, 3)
	if err != nil || resp.Type.Class != stun.ClassSuccessResponse {
		return Candidate{}, false
	}
	xorAddr, ok := getXORMappedAddress(resp)
	if !ok {
		return Candidate{}, false
	}
	mapped := &net.UDPAddr{IP: net.IP(xorAddr.IP), Port: xorAddr.Port}
	return makeServerReflexiveCandidate(base.Component, mapped, base), true
}

// gatherRelay performs one TURN allocation for comp, mirroring the
// per-component relayed_candidate allocation in the gather_candidates
// reference. Spec §4.1.
func (a *Agent) gatherRelay(ctx context.Context, comp int) {
	conn, relayed, reflexive, err := a.config.TurnAllocator.Allocate(ctx, *a.config.TurnServer)
	if err != nil {
		return
	}
	ep := newEndpoint(comp, conn, a, a.log)
	relayedAddr, ok := relayed.(*net.UDPAddr)
	if !ok {
		_ = ep.close()
		return
	}
	var reflAddr *net.UDPAddr
	if ua, ok := reflexive.(*net.UDPAddr); ok {
		reflAddr = ua
	}
	c := makeRelayCandidate(comp, relayedAddr, reflAddr)
	_ = a.runSync(func(a *Agent) {
		a.localCandidates = append(a.localCandidates, &localCandidate{candidate: c, endpoint: ep})
	})
}
