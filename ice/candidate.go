package ice

import (
	"encoding/base32"
	"fmt"
	"hash/fnv"
	"net"
	"strings"
)

// CandidateType identifies where a transport address was discovered from.
// See RFC 5245 §4.1.1.
type CandidateType int

const (
	CandidateTypeHost CandidateType = iota
	CandidateTypeServerReflexive
	CandidateTypePeerReflexive
	CandidateTypeRelay
)

func (t CandidateType) String() string {
	switch t {
	case CandidateTypeHost:
		return "host"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// Candidate is an immutable transport address the agent may use for a
// component. See spec §3.
type Candidate struct {
	Foundation string
	Component  int
	Transport  string // always "udp" for this core
	Priority   uint32
	// Host is the literal address as it would appear on the wire: an IP
	// literal for fully-resolved candidates, or a "*.local" mDNS name
	// for a remote candidate signaled before resolution. IP is the
	// resolved form and is what the agent actually dials/binds.
	Host string
	IP   net.IP
	Port int
	Type CandidateType

	RelatedAddress net.IP
	RelatedPort    int
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s:%s:%d/%d typ %s", c.Foundation, c.IP, c.Port, c.Component, c.Type)
}

func (c Candidate) addr() *net.UDPAddr {
	return &net.UDPAddr{IP: c.IP, Port: c.Port}
}

func (c Candidate) isIPv4() bool {
	return c.IP.To4() != nil
}

// RFC 5245 §4.1.2.1 type preferences, as fixed by spec §3 (IPv4-only
// srflx, single local interface rank so the local preference term is
// constant).
const (
	typePrefHost  = 126
	typePrefPrflx = 110
	typePrefSrflx = 100
	typePrefRelay = 0

	localPref = 65535
)

func typePreference(t CandidateType) uint32 {
	switch t {
	case CandidateTypeHost:
		return typePrefHost
	case CandidateTypePeerReflexive:
		return typePrefPrflx
	case CandidateTypeServerReflexive:
		return typePrefSrflx
	case CandidateTypeRelay:
		return typePrefRelay
	default:
		panic("ice: invalid candidate type")
	}
}

// candidatePriority implements RFC 5245 §4.1.2.1.
func candidatePriority(t CandidateType, component int) uint32 {
	return (typePreference(t) << 24) + (uint32(localPref) << 8) + uint32(256-component)
}

// candidateFoundation implements RFC 5245 §4.1.1.3: candidates share a
// foundation iff they share type, base address, and transport.
func candidateFoundation(t CandidateType, transport string, baseHost string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%s/%s", t, transport, baseHost)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return strings.ToLower(enc.EncodeToString(h.Sum(nil)))[:8]
}

func makeHostCandidate(component int, ip net.IP, port int) Candidate {
	return Candidate{
		Foundation: candidateFoundation(CandidateTypeHost, "udp", ip.String()),
		Component:  component,
		Transport:  "udp",
		Priority:   candidatePriority(CandidateTypeHost, component),
		Host:       ip.String(),
		IP:         ip,
		Port:       port,
		Type:       CandidateTypeHost,
	}
}

func makeServerReflexiveCandidate(component int, mapped *net.UDPAddr, base Candidate) Candidate {
	return Candidate{
		Foundation:     candidateFoundation(CandidateTypeServerReflexive, "udp", base.IP.String()),
		Component:      component,
		Transport:      "udp",
		Priority:       candidatePriority(CandidateTypeServerReflexive, component),
		Host:           mapped.IP.String(),
		IP:             mapped.IP,
		Port:           mapped.Port,
		Type:           CandidateTypeServerReflexive,
		RelatedAddress: base.IP,
		RelatedPort:    base.Port,
	}
}

func makeRelayCandidate(component int, relayed *net.UDPAddr, reflexive *net.UDPAddr) Candidate {
	c := Candidate{
		Foundation: candidateFoundation(CandidateTypeRelay, "udp", relayed.IP.String()),
		Component:  component,
		Transport:  "udp",
		Priority:   candidatePriority(CandidateTypeRelay, component),
		Host:       relayed.IP.String(),
		IP:         relayed.IP,
		Port:       relayed.Port,
		Type:       CandidateTypeRelay,
	}
	if reflexive != nil {
		c.RelatedAddress = reflexive.IP
		c.RelatedPort = reflexive.Port
	}
	return c
}

// makePeerReflexiveCandidate builds a prflx candidate discovered from an
// inbound connectivity check, per RFC 5245 §7.3.1.3-4: its priority comes
// from the PRIORITY attribute carried on the request, not the formula.
func makePeerReflexiveCandidate(component int, addr *net.UDPAddr, priority uint32) Candidate {
	return Candidate{
		Foundation: randomFoundation(),
		Component:  component,
		Transport:  "udp",
		Priority:   priority,
		Host:       addr.IP.String(),
		IP:         addr.IP,
		Port:       addr.Port,
		Type:       CandidateTypePeerReflexive,
	}
}

// peerReflexivePriority is the priority this local candidate would carry
// if it were peer-reflexive, used on outbound checks per RFC 5245 §4.1.2.1.
func peerReflexivePriority(component int) uint32 {
	return candidatePriority(CandidateTypePeerReflexive, component)
}
