package ice

import "net"

// HostAddressSource enumerates local non-loopback addresses for host
// candidate gathering. Injected via AgentConfig so tests can supply a
// fake topology without touching real interfaces.
type HostAddressSource interface {
	LocalAddresses(useIPv4, useIPv6 bool) ([]net.IP, error)
}

// netHostAddressSource is the default HostAddressSource, grounded on
// internal/ice/base.go:initializeBases's net.Interfaces walk.
type netHostAddressSource struct{}

func (netHostAddressSource) LocalAddresses(useIPv4, useIPv6 bool) ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP
			if ip.IsLoopback() {
				continue
			}
			is4 := ip.To4() != nil
			if is4 && !useIPv4 {
				continue
			}
			if !is4 && !useIPv6 {
				continue
			}
			// Link-local IPv6 is accepted and returned zone-less; the
			// host bind in GatherCandidates uses the bare IP and adds no
			// interface zone.
			out = append(out, ip)
		}
	}
	return out, nil
}
