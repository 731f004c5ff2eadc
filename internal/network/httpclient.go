// File: internal/network/httpclient.go
// Description: Shared HTTP client for the inference and perception gateways.

package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Constants for default transport settings.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultRequestTimeout        = 2 * time.Minute
	DefaultMaxIdleConns          = 20
	DefaultMaxIdleConnsPerHost   = 4
	DefaultIdleConnTimeout       = 90 * time.Second
	requiredMinTLSVersion        = tls.VersionTLS12
	defaultResponseHeaderTimeout = 0
)

// ClientConfig holds the configuration for the HTTP client and transport layers.
type ClientConfig struct {
	// RequestTimeout bounds a whole exchange, body included. Model inference
	// and screenshot parsing routinely take minutes.
	RequestTimeout time.Duration
	// ResponseHeaderTimeout of zero waits for headers as long as RequestTimeout allows.
	ResponseHeaderTimeout time.Duration
	TLSHandshakeTimeout   time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	IgnoreTLSErrors bool
	ForceHTTP2      bool

	Logger *zap.Logger
}

// NewDefaultClientConfig creates a configuration for long-running gateway calls.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout:        DefaultRequestTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		DialTimeout:           DefaultDialTimeout,
		KeepAlive:             DefaultKeepAliveInterval,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ForceHTTP2:            true,
		Logger:                zap.NewNop(),
	}
}

// NewGatewayClient returns the default client with the given overall timeout.
// A non-positive timeout keeps DefaultRequestTimeout.
func NewGatewayClient(timeout time.Duration, logger *zap.Logger) *http.Client {
	cfg := NewDefaultClientConfig()
	if timeout > 0 {
		cfg.RequestTimeout = timeout
	}
	if logger != nil {
		cfg.Logger = logger.Named("httpclient")
	}
	return NewClient(cfg)
}

// NewHTTPTransport creates and configures an http.Transport based on the provided configuration.
func NewHTTPTransport(config *ClientConfig) *http.Transport {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	dialer := &net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: config.KeepAlive,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       configureTLS(config),
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     config.ForceHTTP2,
	}

	if config.ForceHTTP2 {
		// http2.ConfigureTransport modifies the transport in place to add HTTP/2 support.
		if err := http2.ConfigureTransport(transport); err != nil {
			config.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else {
		transport.TLSClientConfig.NextProtos = []string{"http/1.1"}
	}
	return transport
}

// NewClient creates an http.Client on top of NewHTTPTransport.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	return &http.Client{
		Transport: NewHTTPTransport(config),
		Timeout:   config.RequestTimeout,
	}
}

// configureTLS sets up the TLS configuration with strong defaults.
func configureTLS(config *ClientConfig) *tls.Config {
	return &tls.Config{
		MinVersion:         requiredMinTLSVersion,
		ClientSessionCache: tls.NewLRUClientSessionCache(64),
		InsecureSkipVerify: config.IgnoreTLSErrors,
	}
}
