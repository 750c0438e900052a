// AngelaMos | 2026
// realip_test.go

package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resolvedKey(trusted []netip.Prefix, remote string, headers map[string]string) string {
	var key string
	h := RealIP(trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		key = KeyByIP(r)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return key
}

func TestRealIPIgnoresHeadersWithoutTrustedProxies(t *testing.T) {
	headers := map[string]string{
		"X-Forwarded-For": "203.0.113.9",
		"X-Real-IP":       "203.0.113.10",
	}

	assert.Equal(t, "limit:ip:198.51.100.20", resolvedKey(nil, "198.51.100.20:40000", headers))
}

func TestRealIPIgnoresHeadersFromUntrustedPeer(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	headers := map[string]string{"X-Forwarded-For": "203.0.113.9"}

	assert.Equal(t, "limit:ip:198.51.100.20", resolvedKey(trusted, "198.51.100.20:40000", headers))
}

func TestRealIPRotatedForwardedForSharesBudget(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	first := resolvedKey(trusted, "10.0.0.2:8443", map[string]string{
		"X-Forwarded-For": "192.0.2.77, 198.51.100.20",
	})
	second := resolvedKey(trusted, "10.0.0.2:8443", map[string]string{
		"X-Forwarded-For": "192.0.2.78, 198.51.100.20",
	})

	assert.Equal(t, "limit:ip:198.51.100.20", first)
	assert.Equal(t, first, second)
}

func TestRealIPSkipsTrustedHops(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
	}

	key := resolvedKey(trusted, "10.0.0.2:8443", map[string]string{
		"X-Forwarded-For": "198.51.100.20, 172.16.4.4",
	})
	assert.Equal(t, "limit:ip:198.51.100.20", key)
}

func TestRealIPFallsBackToRealIPHeader(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.2/32")}

	key := resolvedKey(trusted, "10.0.0.2:8443", map[string]string{
		"X-Real-IP": "198.51.100.20",
	})
	assert.Equal(t, "limit:ip:198.51.100.20", key)

	key = resolvedKey(trusted, "10.0.0.2:8443", map[string]string{
		"X-Real-IP": "not-an-ip",
	})
	assert.Equal(t, "limit:ip:10.0.0.2", key)
}
