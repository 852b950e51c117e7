package ice

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
)

const mdnsAddr = "224.0.0.251:5353"

// MDNSResolver resolves .local candidate hostnames. Injected via
// AgentConfig so tests can supply a fake resolver.
type MDNSResolver interface {
	IsMDNSHostname(host string) bool
	// Resolve returns the IP for host, or an error if it cannot be
	// resolved within ctx's deadline. Unresolved hostnames are dropped
	// by the caller (spec §4.1), not surfaced as agent errors.
	Resolve(ctx context.Context, host string) (net.IP, error)
}

func isMDNSHostname(host string) bool {
	return strings.HasSuffix(host, ".local")
}

// pionMDNSResolver wraps a shared pion/mdns/v2 connection. Agents acquire
// it through acquireMDNSResolver and release it on Close; the underlying
// connection is torn down once the last Agent releases it, per spec §5's
// process-wide singleton requirement.
type pionMDNSResolver struct {
	conn *mdns.Conn
}

func (pionMDNSResolver) IsMDNSHostname(host string) bool { return isMDNSHostname(host) }

func (r *pionMDNSResolver) Resolve(ctx context.Context, host string) (net.IP, error) {
	if r.conn == nil {
		return nil, newError(KindInvalidArgument, "mdns resolver unavailable")
	}
	_, addr, err := r.conn.Query(ctx, host)
	if err != nil {
		return nil, err
	}
	return addr.IP, nil
}

var (
	mdnsMu       sync.Mutex
	mdnsRefCount int
	mdnsShared   *pionMDNSResolver
)

// acquireMDNSResolver returns the process-wide mDNS resolver, creating
// its underlying multicast connection on first use. Grounded on spec
// §5/§9's "module-level handle behind a mutex" instruction.
func acquireMDNSResolver() MDNSResolver {
	mdnsMu.Lock()
	defer mdnsMu.Unlock()

	mdnsRefCount++
	if mdnsShared != nil {
		return mdnsShared
	}

	addr, err := net.ResolveUDPAddr("udp4", mdnsAddr)
	if err != nil {
		mdnsShared = &pionMDNSResolver{}
		return mdnsShared
	}
	sock, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: addr.Port})
	if err != nil {
		mdnsShared = &pionMDNSResolver{}
		return mdnsShared
	}
	conn, err := mdns.Server(ipv4.NewPacketConn(sock), nil, &mdns.Config{})
	if err != nil {
		mdnsShared = &pionMDNSResolver{}
		return mdnsShared
	}
	mdnsShared = &pionMDNSResolver{conn: conn}
	return mdnsShared
}

func releaseMDNSResolver() {
	mdnsMu.Lock()
	defer mdnsMu.Unlock()

	if mdnsRefCount == 0 {
		return
	}
	mdnsRefCount--
	if mdnsRefCount == 0 && mdnsShared != nil {
		if mdnsShared.conn != nil {
			_ = mdnsShared.conn.Close()
		}
		mdnsShared = nil
	}
}
