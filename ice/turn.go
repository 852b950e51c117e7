package ice

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/pion/logging"
	"github.com/pion/turn/v4"
)

// TurnAllocator obtains a relayed transport endpoint plus its
// server-reflexive address from a TURN server. Injected via AgentConfig
// so tests can supply a fake allocator.
type TurnAllocator interface {
	// Allocate returns the relayed PacketConn, the relayed address, and
	// the server-reflexive address observed by the TURN server.
	Allocate(ctx context.Context, server TurnServerConfig) (conn net.PacketConn, relayed net.Addr, reflexive net.Addr, err error)
}

// pionTurnAllocator is grounded on the gatherCandidatesRelay flow in the
// pion/ice gatherer reference (other_examples' agnivade-ice gather.go):
// a control conn dialed to the server, wrapped in a turn.Client, then
// Listen + Allocate. The control conn is plain UDP by default; when
// server.Transport is "tcp" (optionally with SSL) it dials a stream
// conn instead and adapts it with turn.NewSTUNConn, per spec's
// turn_server? "ssl"/"transport" sub-params.
type pionTurnAllocator struct{}

func (pionTurnAllocator) Allocate(ctx context.Context, server TurnServerConfig) (net.PacketConn, net.Addr, net.Addr, error) {
	var (
		conn  net.PacketConn
		raddr net.Addr
	)

	switch server.Transport {
	case "tcp":
		dialer := &net.Dialer{}
		var (
			stream net.Conn
			err    error
		)
		if server.SSL {
			stream, err = tls.DialWithDialer(dialer, "tcp", server.Addr, &tls.Config{})
		} else {
			stream, err = dialer.DialContext(ctx, "tcp", server.Addr)
		}
		if err != nil {
			return nil, nil, nil, err
		}
		raddr = stream.RemoteAddr()
		conn = turn.NewSTUNConn(stream)
	default:
		udpAddr, err := net.ResolveUDPAddr("udp4", server.Addr)
		if err != nil {
			return nil, nil, nil, err
		}
		raddr = udpAddr
		conn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
		if err != nil {
			return nil, nil, nil, err
		}
	}

	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: server.Addr,
		TURNServerAddr: server.Addr,
		Conn:           conn,
		Username:       server.Username,
		Password:       server.Password,
		LoggerFactory:  logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	if err := client.Listen(); err != nil {
		client.Close()
		conn.Close()
		return nil, nil, nil, err
	}

	relayConn, err := client.Allocate()
	if err != nil {
		client.Close()
		conn.Close()
		return nil, nil, nil, err
	}

	reflexive, err := client.SendBindingRequestTo(raddr)
	if err != nil {
		reflexive = nil
	}

	return relayConn, relayConn.LocalAddr(), reflexive, nil
}
