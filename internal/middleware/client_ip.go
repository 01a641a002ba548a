package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies lists the networks allowed to report the client address
// through X-Forwarded-For. The zero value trusts nobody.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDR prefixes or bare addresses.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	var proxies TrustedProxies
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", value, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", value, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

func (t TrustedProxies) trusts(addr netip.Addr) bool {
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the caller. X-Forwarded-For is consulted
// only when the connection comes from a trusted proxy, and then walked from
// the right: the first hop not in t is the client.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	remote, ok := remoteAddr(r)
	if !ok {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !t.trusts(remote) {
		return remote.String()
	}

	hops := forwardedHops(r)
	client := remote
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseHop(hops[i])
		if !ok {
			break
		}
		client = addr
		if !t.trusts(addr) {
			break
		}
	}
	return client.String()
}

// ClientIP returns the remote host of r without trusting any forwarding header.
func ClientIP(r *http.Request) string {
	return TrustedProxies(nil).ClientIP(r)
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return parseHop(host)
}

func forwardedHops(r *http.Request) []string {
	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(header, ",")...)
	}
	return hops
}

func parseHop(value string) (netip.Addr, bool) {
	value = strings.TrimSpace(value)
	if addr, err := netip.ParseAddr(value); err == nil {
		return addr.Unmap(), true
	}
	if addrPort, err := netip.ParseAddrPort(value); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}
