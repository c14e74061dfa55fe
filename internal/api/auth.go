package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"dentalvoice/internal/config"
)

const clientKeyUnknown = "unknown"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
	errRateLimited  = errors.New("rate limit exceeded")
)

// HTTPAuth checks bearer tokens and applies a per-client rate limit.
type HTTPAuth struct {
	cfg     config.AuthConfig
	tokens  []config.ClientToken
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.AuthConfig, rl config.RateLimit) *HTTPAuth {
	tokens := make([]config.ClientToken, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if strings.TrimSpace(t.Token) != "" {
			tokens = append(tokens, t)
		}
	}
	return &HTTPAuth{cfg: cfg, tokens: tokens, limiter: newRateLimiter(rl)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight never carries credentials
		if r.Method == http.MethodOptions || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		key := a.remoteKey(r)
		if a.cfg.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			key = client.Name
			if key == "" {
				key = client.Token
			}
		}

		if a.limiter.enabled() && !a.limiter.getLimiter(key).Allow() {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) (config.ClientToken, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return config.ClientToken{}, errMissingToken
	}
	for _, client := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(client.Token), []byte(token)) == 1 {
			return client, nil
		}
	}
	return config.ClientToken{}, errInvalidToken
}

func (a *HTTPAuth) remoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
