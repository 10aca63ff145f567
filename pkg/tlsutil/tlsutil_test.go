package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrelay/errors"
)

// generateTestCert creates a self-signed certificate for testing
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "semrelay-client",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// serverCAFile writes the httptest server's certificate as a trusted CA bundle
func serverCAFile(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	return writeFile(t, "ca.pem", certPEM)
}

func TestLoadClientConfig_ZeroKeepsDefaults(t *testing.T) {
	cfg, err := LoadClientConfig(ClientConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr string
	}{
		{"empty", ClientConfig{}, ""},
		{"tls 1.3", ClientConfig{MinVersion: "1.3"}, ""},
		{"cert and key", ClientConfig{CertFile: "c.pem", KeyFile: "k.pem"}, ""},
		{"cert without key", ClientConfig{CertFile: "c.pem"}, "set together"},
		{"key without cert", ClientConfig{KeyFile: "k.pem"}, "set together"},
		{"unknown version", ClientConfig{MinVersion: "1.1"}, "min_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadClientConfig_MinVersion(t *testing.T) {
	cfg, err := LoadClientConfig(ClientConfig{MinVersion: "1.3"})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Nil(t, cfg.RootCAs, "system pool is used when no CA files are given")

	cfg, err = LoadClientConfig(ClientConfig{InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestLoadClientConfig_InvalidSettingsAreFatal(t *testing.T) {
	_, err := LoadClientConfig(ClientConfig{CertFile: "only-cert.pem"})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoadClientConfig_CAFiles(t *testing.T) {
	certPEM, _ := generateTestCert(t)

	t.Run("valid bundle", func(t *testing.T) {
		cfg, err := LoadClientConfig(ClientConfig{CAFiles: []string{writeFile(t, "ca.pem", certPEM)}})
		require.NoError(t, err)
		require.NotNil(t, cfg.RootCAs)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadClientConfig(ClientConfig{CAFiles: []string{filepath.Join(t.TempDir(), "nope.pem")}})
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
		assert.Contains(t, err.Error(), "read CA file")
	})

	t.Run("not PEM", func(t *testing.T) {
		_, err := LoadClientConfig(ClientConfig{CAFiles: []string{writeFile(t, "ca.pem", []byte("garbage"))}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid PEM data")
	})
}

func TestLoadClientConfig_MutualTLS(t *testing.T) {
	certPEM, keyPEM := generateTestCert(t)
	certFile := writeFile(t, "cert.pem", certPEM)
	keyFile := writeFile(t, "key.pem", keyPEM)

	cfg, err := LoadClientConfig(ClientConfig{CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)

	_, err = LoadClientConfig(ClientConfig{CertFile: certFile, KeyFile: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load client certificate")
}

func TestLoadClientConfig_TrustsCustomGateway(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	// Without the CA the self-signed gateway is rejected
	plain := &http.Client{Timeout: 5 * time.Second}
	_, err := plain.Get(ts.URL)
	require.Error(t, err)

	tlsConfig, err := LoadClientConfig(ClientConfig{CAFiles: []string{serverCAFile(t, ts)}})
	require.NoError(t, err)

	trusted := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}
	resp, err := trusted.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
