// File: internal/fetch/client.go
package fetch

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Defaults for fetching page assets such as the axe-core bundle.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
	DefaultIdleConnTimeout       = 30 * time.Second
)

// Config holds the settings of the asset client.
type Config struct {
	RequestTimeout  time.Duration
	IgnoreTLSErrors bool
	// ForceHTTP2 negotiates h2 over TLS when the server offers it.
	ForceHTTP2 bool
	Logger     *zap.Logger
}

// DefaultConfig returns the stock client settings.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: DefaultRequestTimeout,
		ForceHTTP2:     true,
		Logger:         zap.NewNop(),
	}
}

// NewTransport builds the transport behind NewClient.
func NewTransport(cfg Config) *http.Transport {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: 15 * time.Second}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.IgnoreTLSErrors},
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConnsPerHost:   4,
		ForceAttemptHTTP2:     cfg.ForceHTTP2,
	}

	if cfg.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			cfg.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else {
		transport.TLSClientConfig.NextProtos = []string{"http/1.1"}
	}
	return transport
}

// NewClient returns an http.Client that negotiates compression itself and
// hands callers a decoded body.
func NewClient(cfg Config) *http.Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &http.Client{
		Transport: NewDecodingTransport(NewTransport(cfg)),
		Timeout:   cfg.RequestTimeout,
	}
}
