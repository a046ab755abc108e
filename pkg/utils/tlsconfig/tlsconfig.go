package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"

	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

var (
	ErrCertificatesLoading  = errors.New("cert and key could not be loaded")
	ErrCaLoading            = errors.New("ca could not be loaded")
	ErrFailedToAppendCACert = errors.New("failed to append CA certificate to the pool")
)

type Option func(*tls.Config) error

func WithCertAndKey(certPath, keyPath string) Option {
	return func(c *tls.Config) error {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return errs.Wrap(ErrCertificatesLoading, err)
		}

		c.Certificates = []tls.Certificate{cert}

		return nil
	}
}

func WithCA(caPath string) Option {
	return func(c *tls.Config) error {
		pool, err := loadPool(caPath)
		if err != nil {
			return err
		}

		c.RootCAs = pool

		return nil
	}
}

// WithClientCA makes a server require client certificates signed by the CA
// at caPath.
func WithClientCA(caPath string) Option {
	return func(c *tls.Config) error {
		pool, err := loadPool(caPath)
		if err != nil {
			return err
		}

		c.ClientCAs = pool
		c.ClientAuth = tls.RequireAndVerifyClientCert

		return nil
	}
}

func WithMinVersion(minVersion uint16) Option {
	return func(c *tls.Config) error {
		c.MinVersion = minVersion
		return nil
	}
}

func WithCertPool(pool *x509.CertPool) Option {
	return func(c *tls.Config) error {
		c.RootCAs = pool
		return nil
	}
}

// NewTLSConfig builds a TLS 1.2+ configuration for the twin server or its
// clients.
func NewTLSConfig(opts ...Option) (*tls.Config, error) {
	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	for _, opt := range opts {
		err := opt(config)
		if err != nil {
			return nil, err
		}
	}

	return config, nil
}

func loadPool(caPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, errs.Wrap(ErrCaLoading, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, ErrFailedToAppendCACert
	}

	return pool, nil
}
