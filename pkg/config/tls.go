package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"
)

// TLSConfig represents TLS termination configuration
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	CertFile   string `yaml:"cert_file" json:"cert_file"`
	KeyFile    string `yaml:"key_file" json:"key_file"`
	MinVersion string `yaml:"min_version,omitempty" json:"min_version,omitempty"`
}

var tlsVersions = map[string]uint16{
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// Validate checks that an enabled TLS block names readable key material.
func (c *TLSConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.CertFile) == "" {
		return fmt.Errorf("cert_file is required when TLS is enabled")
	}
	if strings.TrimSpace(c.KeyFile) == "" {
		return fmt.Errorf("key_file is required when TLS is enabled")
	}
	for _, f := range []string{c.CertFile, c.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("cannot access %s: %w", f, err)
		}
	}
	if _, err := c.minVersion(); err != nil {
		return err
	}
	return nil
}

// ServerTLS returns the crypto/tls settings for the listener. Certificates
// are loaded by the server from CertFile and KeyFile.
func (c *TLSConfig) ServerTLS() (*tls.Config, error) {
	minVersion, err := c.minVersion()
	if err != nil {
		return nil, err
	}
	return &tls.Config{MinVersion: minVersion}, nil
}

func (c *TLSConfig) minVersion() (uint16, error) {
	v := strings.TrimSpace(c.MinVersion)
	if v == "" {
		return tls.VersionTLS12, nil
	}
	version, ok := tlsVersions[v]
	if !ok {
		return 0, fmt.Errorf("unsupported TLS min_version %q (supported: 1.2, 1.3)", c.MinVersion)
	}
	return version, nil
}
