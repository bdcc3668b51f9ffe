package transport

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// expiryWarningDays is how close to NotAfter a certificate gets flagged.
const expiryWarningDays = 30

// CertificateInfo holds parsed certificate metadata.
type CertificateInfo struct {
	Subject         string
	Issuer          string
	ValidFrom       time.Time
	ValidUntil      time.Time
	DaysUntilExpiry int
	SANs            []string
	IsExpired       bool
	ExpiryWarning   bool // true if <= 30 days left
}

// Describe extracts expiry information from cert as of now.
func Describe(cert *x509.Certificate, now time.Time) CertificateInfo {
	isExpired := now.After(cert.NotAfter)
	days := int(cert.NotAfter.Sub(now).Hours() / 24)

	var sans []string
	for _, dns := range cert.DNSNames {
		sans = append(sans, fmt.Sprintf("DNS:%s", dns))
	}
	for _, ip := range cert.IPAddresses {
		sans = append(sans, fmt.Sprintf("IP:%s", ip.String()))
	}

	return CertificateInfo{
		Subject:         cert.Subject.String(),
		Issuer:          cert.Issuer.String(),
		ValidFrom:       cert.NotBefore,
		ValidUntil:      cert.NotAfter,
		DaysUntilExpiry: days,
		SANs:            sans,
		IsExpired:       isExpired,
		ExpiryWarning:   days <= expiryWarningDays && !isExpired,
	}
}

// CertificateMonitor is a RoundTripper that remembers the leaf certificate
// the API server presented on the most recent TLS response.
type CertificateMonitor struct {
	base http.RoundTripper

	mu   sync.RWMutex
	leaf *x509.Certificate
}

// NewCertificateMonitor wraps base.
func NewCertificateMonitor(base http.RoundTripper) *CertificateMonitor {
	return &CertificateMonitor{base: base}
}

// RoundTrip implements http.RoundTripper.
func (cm *CertificateMonitor) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := cm.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		cm.mu.Lock()
		cm.leaf = resp.TLS.PeerCertificates[0]
		cm.mu.Unlock()
	}
	return resp, nil
}

// CloseIdleConnections closes idle connections of the wrapped transport.
func (cm *CertificateMonitor) CloseIdleConnections() {
	if c, ok := cm.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// Certificate describes the last seen server certificate. ok is false until a
// TLS response has been received.
func (cm *CertificateMonitor) Certificate(now time.Time) (info CertificateInfo, ok bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.leaf == nil {
		return CertificateInfo{}, false
	}
	return Describe(cm.leaf, now), true
}

// MonitorOf returns the CertificateMonitor behind client, if any.
func MonitorOf(client *http.Client) (*CertificateMonitor, bool) {
	if client == nil {
		return nil, false
	}
	cm, ok := client.Transport.(*CertificateMonitor)
	return cm, ok
}
