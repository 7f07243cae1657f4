package render

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"github.com/straye-as/chart-api/internal/config"
)

// maxRedirects bounds redirects followed for a single cover
const maxRedirects = 5

// ErrBlockedAddress is returned when a cover host resolves to an address that is
// not publicly routable
var ErrBlockedAddress = errors.New("image host is not a public address")

// nonPublicPrefixes are special-purpose ranges not covered by the netip predicates
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),      // "this network"
	netip.MustParsePrefix("100.64.0.0/10"),  // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),   // IETF protocol assignments
	netip.MustParsePrefix("198.18.0.0/15"),  // benchmarking
	netip.MustParsePrefix("240.0.0.0/4"),    // reserved
	netip.MustParsePrefix("64:ff9b::/96"),   // NAT64
	netip.MustParsePrefix("64:ff9b:1::/48"), // local-use NAT64
	netip.MustParsePrefix("2001:db8::/32"),  // documentation
	netip.MustParsePrefix("2002::/16"),      // 6to4 may embed any IPv4 address
	netip.MustParsePrefix("fec0::/10"),      // deprecated site-local
}

// NewImageClient returns the HTTP client used for every cover download, in the
// compositor and behind the browser's request interception. Unless
// cfg.AllowPrivateHosts is set, connections are checked after DNS resolution, so
// hostnames and redirects that point at loopback, private, link-local or other
// non-public addresses are refused.
func NewImageClient(cfg *config.ExportConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.AllowPrivateHosts {
		dialer.Control = denyNonPublic
		// a proxy would be the only address dialed
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   cfg.FetchTimeoutDuration(),
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
}

// denyNonPublic runs for every dial with the already resolved address
func denyNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !IsPublicAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// IsPublicAddr reports whether addr is a globally routable unicast address
func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}
