package firewall

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "CDN header wins over forwarded-for",
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.1"},
			remoteAddr: "10.0.0.1:5000",
			want:       "203.0.113.7",
		},
		{
			name:       "first forwarded-for entry is trimmed",
			headers:    map[string]string{"X-Forwarded-For": "  198.51.100.1 , 10.0.0.2, 10.0.0.3"},
			remoteAddr: "10.0.0.1:5000",
			want:       "198.51.100.1",
		},
		{
			name:       "socket address without port",
			remoteAddr: "192.0.2.44:61234",
			want:       "192.0.2.44",
		},
		{
			name:       "x-real-ip is not trusted",
			headers:    map[string]string{"X-Real-IP": "203.0.113.99"},
			remoteAddr: "192.0.2.45:61234",
			want:       "192.0.2.45",
		},
		{
			name:       "ipv6 socket address",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "empty forwarded-for falls through",
			headers:    map[string]string{"X-Forwarded-For": " , 10.0.0.9"},
			remoteAddr: "192.0.2.1:80",
			want:       "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestRequestFromHTTPRestoresBody(t *testing.T) {
	payload := "name=<script>alert(1)</script>&padding=" + strings.Repeat("x", 64)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/comments?page=2", strings.NewReader(payload))
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.RemoteAddr = "192.0.2.10:1234"

	req, err := RequestFromHTTP(r, 16)
	require.NoError(t, err)

	assert.Equal(t, "192.0.2.10", req.IP)
	assert.Equal(t, "/api/v1/comments?page=2", req.URI())
	assert.Equal(t, payload[:16], string(req.Body))

	rest, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(rest))
}

func TestRequestFromHTTPSkipsBodyForGet(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/images/a.jpg", strings.NewReader("ignored"))
	req, err := RequestFromHTTP(r, 1024)
	require.NoError(t, err)
	assert.Nil(t, req.Body)
	assert.Equal(t, "/images/a.jpg", req.URI())
}
