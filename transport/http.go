// Package transport builds the HTTP client used to reach the GalaCash API.
// HTTPS targets negotiate HTTP/2; plain http:// targets (local dev servers) stay on HTTP/1.1.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
)

// Options configures BuildHTTPClient.
type Options struct {
	Timeout    time.Duration // whole-request timeout, 0 = none
	CACertPath string        // optional PEM bundle replacing the system roots
}

// BuildHTTPClient creates an HTTP client with HTTP/2 enabled for TLS connections.
// Its transport is a CertificateMonitor; see MonitorOf.
func BuildHTTPClient(opts Options) (*http.Client, error) {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if opts.CACertPath != "" {
		caCert, err := os.ReadFile(opts.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	t.TLSClientConfig = tlsConfig

	if err := http2.ConfigureTransport(t); err != nil {
		return nil, fmt.Errorf("failed to enable HTTP/2: %w", err)
	}

	return &http.Client{
		Transport: NewCertificateMonitor(t),
		Timeout:   opts.Timeout,
	}, nil
}
