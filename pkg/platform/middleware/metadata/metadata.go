package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"mediconnect/pkg/requestcontext"
)

// ClientIPResolver derives the client address of a request. Forwarding
// headers are honoured only when the direct peer is a trusted proxy, so a
// caller cannot choose the address recorded for it.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver parses trusted proxy entries, each an IP or a CIDR.
// With no entries every forwarding header is ignored.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	res := &ClientIPResolver{}
	for _, entry := range trustedProxies {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			res.trusted = append(res.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		res.trusted = append(res.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return res, nil
}

func (c *ClientIPResolver) isTrusted(ip string) bool {
	if c == nil {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the peer address, or for a trusted peer the nearest
// untrusted hop of X-Forwarded-For, falling back to X-Real-IP.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	peer := peerAddr(r)
	if !c.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !c.isTrusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// ClientMetadata stores the resolved client IP and the User-Agent in the
// context for handlers and the audit hook. Apply it early in the chain.
func ClientMetadata(resolver *ClientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithClientMetadata(r.Context(), resolver.ClientIP(r), r.Header.Get("User-Agent"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// DeviceLabel summarizes a User-Agent header as "Browser on OS", with a
// mobile or bot marker when detected. It returns "" for an empty header.
func DeviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}

	browser, _ := ua.Browser()
	label := browser
	if os := ua.OS(); os != "" {
		label += " on " + os
	}
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}
