package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"imghost/internal/config"
	"imghost/internal/model"
)

var (
	ErrUploadFailed         = errors.New("upload failed")
	ErrBackendNotConfigured = errors.New("storage backend not configured")
	errUnexpectedStatus     = errors.New("unexpected response status")
)

const aclPublicRead = "public-read"

// Backend is an S3-compatible object store.
type Backend interface {
	Provider() model.Provider
	Configured() bool
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// S3Backend uploads with a self-signed PUT and deletes through the minio
// client.
type S3Backend struct {
	provider model.Provider
	cfg      config.BackendConfig
	endpoint *url.URL
	client   *http.Client
	minio    *minio.Client
	now      func() time.Time
}

// NewS3Backend builds a backend for cfg. An unconfigured cfg yields a backend
// whose operations return ErrBackendNotConfigured.
func NewS3Backend(provider model.Provider, cfg config.BackendConfig) (*S3Backend, error) {
	b := &S3Backend{
		provider: provider,
		cfg:      cfg,
		client:   newUploadClient(),
		now:      time.Now,
	}
	if !cfg.Configured() {
		return b, nil
	}

	endpoint, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid %s endpoint %q", provider, cfg.Endpoint)
	}
	b.endpoint = endpoint

	mc, err := minio.New(endpoint.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       endpoint.Scheme == "https",
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	b.minio = mc

	return b, nil
}

func newUploadClient() *http.Client {
	return &http.Client{
		Timeout: config.UploadTotalTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   config.UploadConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: config.UploadConnectTimeout,
			MaxIdleConnsPerHost: 10,
		},
	}
}

func (b *S3Backend) Provider() model.Provider {
	return b.provider
}

func (b *S3Backend) Configured() bool {
	return b.endpoint != nil
}

// Put uploads data to key with a public-read ACL. Any transport error or
// non-2xx response is returned; there is no retry.
func (b *S3Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if !b.Configured() {
		return ErrBackendNotConfigured
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectPath := b.objectPath(key)
	payloadHash := hashHex(data)
	sig := Sign(SigningParams{
		Method: http.MethodPut,
		Host:   b.endpoint.Host,
		Path:   objectPath,
		Headers: map[string]string{
			"content-length": strconv.Itoa(len(data)),
			"content-type":   contentType,
			"x-amz-acl":      aclPublicRead,
		},
		PayloadHash: payloadHash,
		Region:      b.cfg.Region,
		AccessKey:   b.cfg.AccessKey,
		SecretKey:   b.cfg.SecretKey,
		Time:        b.now(),
	})

	target := b.endpoint.Scheme + "://" + b.endpoint.Host + EscapePath(objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Amz-Acl", aclPublicRead)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	req.Header.Set("X-Amz-Date", sig.AmzDate)
	req.Header.Set("Authorization", sig.Authorization)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", errUnexpectedStatus, b.provider, resp.StatusCode,
			strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	if !b.Configured() {
		return ErrBackendNotConfigured
	}
	return b.minio.RemoveObject(ctx, b.cfg.Bucket, strings.TrimLeft(key, "/"), minio.RemoveObjectOptions{})
}

// PublicURL returns the public address of key, preferring the configured
// public base URL over the API endpoint.
func (b *S3Backend) PublicURL(key string) string {
	key = strings.TrimLeft(key, "/")
	if b.cfg.PublicURL != "" {
		return strings.TrimRight(b.cfg.PublicURL, "/") + "/" + EscapePath(key)
	}
	if b.endpoint == nil {
		return ""
	}
	return b.endpoint.Scheme + "://" + b.endpoint.Host + EscapePath(b.objectPath(key))
}

// objectPath is the unescaped path-style location: /bucket/key.
func (b *S3Backend) objectPath(key string) string {
	base := ""
	if b.endpoint != nil {
		base = strings.TrimRight(b.endpoint.Path, "/")
	}
	return base + "/" + b.cfg.Bucket + "/" + strings.TrimLeft(key, "/")
}
