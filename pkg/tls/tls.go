// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tls builds client TLS configurations for brokers served over ssl or wss.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
)

var (
	errLoadCerts   = errors.New("failed to load client certificates")
	errLoadCA      = errors.New("failed to load CA")
	errAppendCA    = errors.New("failed to append root ca tls.Config")
	errHalfKeyPair = errors.New("cert_file and key_file must be set together")
)

// Config describes how to reach a TLS broker.
type Config struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// IsZero reports whether nothing is configured.
func (c Config) IsZero() bool {
	return c == Config{}
}

// LoadTLSConfig returns a client TLS configuration, or nil when c is empty so the
// dialer falls back to the system roots.
func LoadTLSConfig(c Config) (*tls.Config, error) {
	if c.IsZero() {
		return nil, nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return nil, errHalfKeyPair
	}

	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed test brokers
	}

	if c.CertFile != "" {
		certificate, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, errors.Join(errLoadCerts, err)
		}
		config.Certificates = []tls.Certificate{certificate}
	}

	rootCA, err := loadCertFile(c.CAFile)
	if err != nil {
		return nil, errors.Join(errLoadCA, err)
	}
	if len(rootCA) > 0 {
		config.RootCAs = x509.NewCertPool()
		if !config.RootCAs.AppendCertsFromPEM(rootCA) {
			return nil, errAppendCA
		}
	}

	return config, nil
}

// SecurityStatus returns log message from TLS config.
func SecurityStatus(c *tls.Config) string {
	if c == nil {
		return "system TLS defaults"
	}
	ret := "TLS"
	if c.RootCAs != nil {
		ret += " with custom CA"
	}
	if len(c.Certificates) > 0 {
		ret += " and client certificate"
	}
	if c.InsecureSkipVerify {
		ret += " (verification disabled)"
	}
	return ret
}

func loadCertFile(certFile string) ([]byte, error) {
	if certFile != "" {
		return os.ReadFile(certFile)
	}
	return []byte{}, nil
}
