package transport

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.cert.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestBuildHTTPClientPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := BuildHTTPClient(Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, resp.ProtoMajor)
}

func TestBuildHTTPClientNegotiatesHTTP2WithCustomCA(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	client, err := BuildHTTPClient(Options{CACertPath: writeCA(t, srv)})
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, resp.ProtoMajor)
}

func TestBuildHTTPClientRejectsUnknownCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client, err := BuildHTTPClient(Options{})
	require.NoError(t, err)

	_, err = client.Get(srv.URL)
	assert.Error(t, err)
}

func TestBuildHTTPClientBadCA(t *testing.T) {
	_, err := BuildHTTPClient(Options{CACertPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0600))
	_, err = BuildHTTPClient(Options{CACertPath: garbage})
	assert.Error(t, err)
}

func TestCertificateMonitorRecordsServerCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client, err := BuildHTTPClient(Options{CACertPath: writeCA(t, srv)})
	require.NoError(t, err)
	defer client.CloseIdleConnections()

	cm, ok := MonitorOf(client)
	require.True(t, ok)
	_, seen := cm.Certificate(time.Now())
	assert.False(t, seen, "nothing before the first response")

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	now := time.Now()
	info, seen := cm.Certificate(now)
	require.True(t, seen)
	assert.Equal(t, srv.Certificate().NotAfter, info.ValidUntil)
	assert.Contains(t, info.SANs, "IP:127.0.0.1")
	assert.False(t, info.IsExpired)

	expired := Describe(srv.Certificate(), srv.Certificate().NotAfter.Add(time.Hour))
	assert.True(t, expired.IsExpired)
	assert.False(t, expired.ExpiryWarning)

	soon := Describe(srv.Certificate(), srv.Certificate().NotAfter.Add(-10*24*time.Hour))
	assert.True(t, soon.ExpiryWarning)
	assert.Equal(t, 10, soon.DaysUntilExpiry)
}

func TestCertificateMonitorPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client, err := BuildHTTPClient(Options{})
	require.NoError(t, err)
	defer client.CloseIdleConnections()

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	cm, _ := MonitorOf(client)
	_, seen := cm.Certificate(time.Now())
	assert.False(t, seen)

	_, ok := MonitorOf(&http.Client{})
	assert.False(t, ok)
}
