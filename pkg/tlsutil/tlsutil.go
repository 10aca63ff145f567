// Package tlsutil builds client TLS settings for gateway connections. The same
// tls.Config serves the HTTP client and the WebSocket dialer.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/semrelay/errors"
)

// ClientConfig describes how to trust the gateway and, optionally, how to
// present a client certificate to it
type ClientConfig struct {
	// CAFiles are PEM bundles trusted in addition to the system pool
	CAFiles []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	// CertFile and KeyFile enable mutual TLS when both are set
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	// MinVersion is "1.2" or "1.3"; empty means 1.2
	MinVersion         string `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// IsZero reports whether the settings leave the Go defaults untouched
func (c ClientConfig) IsZero() bool {
	return len(c.CAFiles) == 0 && c.CertFile == "" && c.KeyFile == "" &&
		c.MinVersion == "" && !c.InsecureSkipVerify
}

// Validate checks the settings without touching the filesystem
func (c ClientConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}
	switch c.MinVersion {
	case "", "1.2", "1.3":
	default:
		return fmt.Errorf("min_version must be 1.2 or 1.3, got %q", c.MinVersion)
	}
	return nil
}

// MutualTLS reports whether a client certificate is configured
func (c ClientConfig) MutualTLS() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// LoadClientConfig creates a tls.Config from cfg. It returns nil, nil when cfg
// is zero so callers keep the transport defaults.
func LoadClientConfig(cfg ClientConfig) (*tls.Config, error) {
	if cfg.IsZero() {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"tlsutil", "LoadClientConfig", "validate TLS settings")
	}

	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
	}

	if len(cfg.CAFiles) > 0 {
		rootCAs, err := x509.SystemCertPool()
		if err != nil {
			rootCAs = x509.NewCertPool()
		}
		for _, caFile := range cfg.CAFiles {
			caPEM, err := os.ReadFile(caFile)
			if err != nil {
				return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", fmt.Sprintf("read CA file %s", caFile))
			}
			if !rootCAs.AppendCertsFromPEM(caPEM) {
				return nil, errors.WrapFatal(fmt.Errorf("invalid PEM data"),
					"tlsutil", "LoadClientConfig", fmt.Sprintf("parse CA certificate from %s", caFile))
			}
		}
		tlsConfig.RootCAs = rootCAs
	}

	if cfg.MutualTLS() {
		clientCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	// Operators opt into this explicitly for self-signed test gateways
	tlsConfig.InsecureSkipVerify = cfg.InsecureSkipVerify

	return tlsConfig, nil
}

// parseTLSVersion returns tls.VersionTLS12 for anything but "1.3"
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
