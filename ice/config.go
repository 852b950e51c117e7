package ice

import (
	"github.com/pion/logging"
	"github.com/pion/transport/v4"
	"github.com/pion/transport/v4/stdnet"
	"github.com/pkg/errors"
)

// TransportPolicy controls which candidate types gather_candidates
// surfaces publicly.
type TransportPolicy int

const (
	// TransportPolicyAll surfaces host, srflx, and relay candidates.
	TransportPolicyAll TransportPolicy = iota
	// TransportPolicyRelay withholds host (and srflx) candidates from
	// LocalCandidates, though host endpoints are still created to host
	// the STUN/TURN machinery. See spec §9.
	TransportPolicyRelay
)

// StunServerConfig names a STUN server used for server-reflexive
// candidate gathering.
type StunServerConfig struct {
	Addr string // host:port
}

// TurnServerConfig names a TURN server used for relay candidate
// gathering.
type TurnServerConfig struct {
	Addr      string
	Username  string
	Password  string
	SSL       bool   // wrap the control connection in TLS
	Transport string // "udp" (default) or "tcp"; combine with SSL for "tls"
}

// AgentConfig configures a new Agent. Only Controlling is mandatory;
// every other field has a documented default.
type AgentConfig struct {
	Controlling bool
	Components  int // default 1

	StunServer *StunServerConfig
	TurnServer *TurnServerConfig

	UseIPv4 bool // default true
	UseIPv6 bool // default true

	TransportPolicy TransportPolicy

	LocalUsername string // generated if empty
	LocalPassword string // generated if empty

	// EphemeralPorts, if non-empty, restricts host UDP binds to this set,
	// retrying each until one succeeds.
	EphemeralPorts []int

	LoggerFactory logging.LoggerFactory

	// Net abstracts UDP listen/dial for host candidate gathering, so
	// tests can substitute a virtual network. Defaults to the host OS
	// network via stdnet.
	Net transport.Net

	HostAddressSource HostAddressSource
	MDNSResolver      MDNSResolver
	TurnAllocator     TurnAllocator
}

func (c *AgentConfig) initWithDefaults() error {
	if c.Components <= 0 {
		c.Components = 1
	}
	if !c.UseIPv4 && !c.UseIPv6 {
		c.UseIPv4 = true
		c.UseIPv6 = true
	}
	if c.TransportPolicy == TransportPolicyRelay && c.StunServer == nil && c.TurnServer == nil {
		return newError(KindInvalidArgument, "transport policy RELAY requires a STUN or TURN server")
	}

	if c.LocalUsername == "" {
		ufrag, err := generateUfrag()
		if err != nil {
			return err
		}
		c.LocalUsername = ufrag
	} else if !validateCredential(c.LocalUsername, 4, 256) {
		return newError(KindInvalidArgument, "local username must be 4..256 ice-chars")
	}

	if c.LocalPassword == "" {
		pwd, err := generatePassword()
		if err != nil {
			return err
		}
		c.LocalPassword = pwd
	} else if !validateCredential(c.LocalPassword, 22, 256) {
		return newError(KindInvalidArgument, "local password must be 22..256 ice-chars")
	}

	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if c.Net == nil {
		n, err := stdnet.NewNet()
		if err != nil {
			return errors.Wrap(err, "ice: create default network")
		}
		c.Net = n
	}
	if c.HostAddressSource == nil {
		c.HostAddressSource = netHostAddressSource{}
	}
	// MDNSResolver is deliberately left nil here if unset: the process-wide
	// singleton is acquired lazily on first remote .local candidate, not at
	// construction. See Agent.ensureMDNS.
	if c.TurnAllocator == nil {
		c.TurnAllocator = pionTurnAllocator{}
	}
	return nil
}
