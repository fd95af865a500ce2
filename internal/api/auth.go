package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"staybook/internal/config"

	"github.com/labstack/echo/v4"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"
)

// Permissions granted to API keys. A key without permissions may call everything.
const (
	PermReadAvailability = "read:availability"
	PermReadBookings     = "read:bookings"
	PermWriteBookings    = "write:bookings"
	PermWritePayments    = "write:payments"
	PermManageStays      = "manage:stays"
	PermManageInventory  = "manage:inventory"
	PermReadReports      = "read:reports"
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// authenticator holds the API key table shared by HTTP and gRPC.
type authenticator struct {
	cfg         config.APIConfig
	clients     map[string]config.APIClientKey
	limiter     *rateLimiter
	keyHeader   string
	extraHeader string
}

func newAuthenticator(cfg config.APIConfig) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	keyHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if keyHeader == "" {
		keyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &authenticator{
		cfg:         cfg,
		clients:     m,
		limiter:     newRateLimiter(cfg.RateLimit),
		keyHeader:   keyHeader,
		extraHeader: extraHeader,
	}
}

// authenticate checks the key pair and that the client holds required.
func (a *authenticator) authenticate(apiKey, extra, required string) error {
	if apiKey == "" || extra == "" {
		return errMissingKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}

	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

// requiredPermissionHTTP maps an echo route onto the permission it needs.
func requiredPermissionHTTP(method, route string) string {
	switch {
	case strings.Contains(route, "/availability/"):
		return PermReadAvailability
	case strings.HasSuffix(route, "/settlements/export"):
		return PermReadReports
	case strings.HasSuffix(route, "/inventory"):
		return PermManageInventory
	case strings.HasSuffix(route, "/payments"), strings.HasSuffix(route, "/refunds"), strings.HasSuffix(route, "/confirm"):
		return PermWritePayments
	case strings.HasSuffix(route, "/check-in"), strings.HasSuffix(route, "/check-out"), strings.HasSuffix(route, "/no-show"):
		return PermManageStays
	case strings.HasPrefix(route, "/api/v1/bookings") && method == http.MethodGet:
		return PermReadBookings
	case strings.HasPrefix(route, "/api/v1/bookings"):
		return PermWriteBookings
	default:
		return ""
	}
}

// Middleware enforces API-key auth and per-client rate limits on the API group.
func (a *authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !a.cfg.Enabled {
				return next(c)
			}

			r := c.Request()
			apiKey := strings.TrimSpace(r.Header.Get(a.keyHeader))

			if a.cfg.Auth.Enabled {
				extra := strings.TrimSpace(r.Header.Get(a.extraHeader))
				if err := a.authenticate(apiKey, extra, requiredPermissionHTTP(r.Method, c.Path())); err != nil {
					code := http.StatusUnauthorized
					if errors.Is(err, errPermissionDenied) {
						code = http.StatusForbidden
					}
					return echo.NewHTTPError(code, err.Error())
				}
			}

			key := apiKey
			if key == "" {
				key = c.RealIP()
			}
			if key == "" {
				key = clientKeyUnknown
			}
			if !a.limiter.allow(key) {
				return echo.NewHTTPError(http.StatusTooManyRequests, errRateLimited.Error())
			}

			return next(c)
		}
	}
}
