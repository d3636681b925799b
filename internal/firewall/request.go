package firewall

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
)

// Header names consulted for the client address, in precedence order.
const (
	HeaderCDNConnectingIP = "CF-Connecting-IP"
	HeaderForwardedFor    = "X-Forwarded-For"
)

// Request is the part of an inbound HTTP request the firewall inspects.
type Request struct {
	IP        string
	Method    string
	Path      string
	RawQuery  string
	UserAgent string
	// Body is only populated for POST requests.
	Body []byte
}

// URI returns the path with its query string.
func (r *Request) URI() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// RequestFromHTTP builds a Request from r. For POST requests up to maxBody
// bytes of the body are read and r.Body is replaced so the handler can still
// consume the full payload.
func RequestFromHTTP(r *http.Request, maxBody int64) (*Request, error) {
	req := &Request{
		IP:        ClientIP(r),
		Method:    r.Method,
		Path:      r.URL.Path,
		RawQuery:  r.URL.RawQuery,
		UserAgent: r.UserAgent(),
	}

	if r.Method == http.MethodPost && r.Body != nil && maxBody > 0 {
		head, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			return nil, err
		}
		req.Body = head
		r.Body = readCloser{
			Reader: io.MultiReader(bytes.NewReader(head), r.Body),
			Closer: r.Body,
		}
	}

	return req, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// ClientIP resolves the caller address: the CDN real-IP header first, then the
// first X-Forwarded-For entry, then the socket address.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get(HeaderCDNConnectingIP)); ip != "" {
		return ip
	}

	if fwd := r.Header.Get(HeaderForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
