package observability

import (
	"net"
	"net/http"
	"strings"
)

// DeviceIDFromRequest returns the client's X-Device-Id header. Browsers that
// cannot set headers on a websocket handshake may pass ?device_id= instead.
func DeviceIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Device-Id"); id != "" {
		return id
	}
	return r.URL.Query().Get("device_id")
}

// RequestIDFromRequest returns the X-Request-Id set by the edge proxy, or ""
// when the request did not pass through one.
func RequestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-Id"))
}

// IPFromRequest returns the first hop of X-Forwarded-For, then X-Real-Ip, then
// the host part of RemoteAddr.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
