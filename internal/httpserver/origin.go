package httpserver

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// originMiddleware enforces the allowed-origin policy for browser requests.
// Requests without an Origin header (curl, server-to-server) pass through.
// With ALLOWED_ORIGINS configured, the origin must match an entry or "*";
// otherwise only same-host origins are accepted.
func (s *Server) originMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Origin"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			normalized, host, ok := normalizeOrigin(header)
			if !ok || !s.originAllowed(normalized, host, r.Host) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", normalized)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				if reqHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); reqHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				}
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) originAllowed(normalized, originHost, requestHost string) bool {
	if allowed := s.cfg.AllowedOrigins; len(allowed) > 0 {
		for _, a := range allowed {
			if a == "*" || a == normalized {
				return true
			}
		}
		return false
	}
	// Default policy: same host:port. The scheme is not compared because a
	// TLS-terminating proxy may present the request as plain HTTP.
	reqHost, ok := normalizeHostPort(requestHost, strings.HasPrefix(normalized, "https://"))
	if !ok {
		return false
	}
	return originHost != "" && originHost == reqHost
}

// normalizeOrigin validates a browser Origin header and returns it as
// scheme://host[:port] with default ports stripped, plus the host[:port]
// portion. The sandboxed value "null" is passed through; it can only match an
// explicit ALLOWED_ORIGINS entry.
func normalizeOrigin(header string) (normalized, host string, ok bool) {
	if header == "null" {
		return "null", "", true
	}
	u, err := url.Parse(header)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host, ok = normalizeHostPort(u.Host, scheme == "https")
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// normalizeHostPort lowercases a host[:port] authority and strips the
// scheme's default port.
func normalizeHostPort(raw string, https bool) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", false
	}

	hostname := raw
	port := ""
	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return "", false
		}
		hostname = raw[:end+1]
		rest := raw[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return "", false
			}
			port = rest[1:]
		}
	} else if i := strings.IndexByte(raw, ':'); i >= 0 {
		if strings.Contains(raw[i+1:], ":") {
			// Unbracketed IPv6 literal.
			return "", false
		}
		hostname, port = raw[:i], raw[i+1:]
	}
	if hostname == "" {
		return "", false
	}

	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		if (!https && n == 80) || (https && n == 443) {
			port = ""
		}
	}
	if port == "" {
		return hostname, true
	}
	return hostname + ":" + port, true
}
