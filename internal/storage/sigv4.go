package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

const (
	signingAlgorithm = "AWS4-HMAC-SHA256"
	amzDateFormat    = "20060102T150405Z"
	shortDateFormat  = "20060102"
	serviceS3        = "s3"

	// EmptyPayloadHash is the SHA-256 of an empty body.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// SigningParams holds everything needed to sign one request. Path is the
// unescaped object path including the bucket, e.g. "/bucket/images/a.jpg".
// Headers carries additional headers to sign; host, x-amz-date and
// x-amz-content-sha256 are always added.
type SigningParams struct {
	Method      string
	Host        string
	Path        string
	Headers     map[string]string
	PayloadHash string
	Region      string
	Service     string
	AccessKey   string
	SecretKey   string
	Time        time.Time
}

type Signature struct {
	Authorization    string
	AmzDate          string
	SignedHeaders    string
	CanonicalRequest string
	StringToSign     string
}

// Sign computes a Signature Version 4 Authorization header. It performs no
// I/O and is deterministic for a given input.
func Sign(p SigningParams) Signature {
	t := p.Time.UTC()
	amzDate := t.Format(amzDateFormat)
	shortDate := t.Format(shortDateFormat)
	service := p.Service
	if service == "" {
		service = serviceS3
	}
	payloadHash := p.PayloadHash
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	headers := make(map[string]string, len(p.Headers)+3)
	for k, v := range p.Headers {
		headers[strings.ToLower(k)] = strings.TrimSpace(v)
	}
	headers["host"] = p.Host
	headers["x-amz-content-sha256"] = payloadHash
	headers["x-amz-date"] = amzDate

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var canonicalHeaders strings.Builder
	for _, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(headers[name])
		canonicalHeaders.WriteByte('\n')
	}
	signedHeaders := strings.Join(names, ";")

	canonicalRequest := strings.Join([]string{
		p.Method,
		EscapePath(p.Path),
		"",
		canonicalHeaders.String(),
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{shortDate, p.Region, service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	key := hmacSHA256([]byte("AWS4"+p.SecretKey), shortDate)
	key = hmacSHA256(key, p.Region)
	key = hmacSHA256(key, service)
	key = hmacSHA256(key, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	return Signature{
		Authorization: signingAlgorithm + " Credential=" + p.AccessKey + "/" + scope +
			", SignedHeaders=" + signedHeaders + ", Signature=" + signature,
		AmzDate:          amzDate,
		SignedHeaders:    signedHeaders,
		CanonicalRequest: canonicalRequest,
		StringToSign:     stringToSign,
	}
}

// EscapePath percent-encodes every byte of p outside the RFC 3986 unreserved
// set, leaving the '/' separators intact.
func EscapePath(p string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
