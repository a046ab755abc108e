// Package cert generates self-signed X.509 material so the helpdesk twin can
// serve TLS, and mutual TLS, without an external certificate authority.
package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

const (
	CertFileName = "twin-cert.pem"
	KeyFileName  = "twin-key.pem"

	validity = 365 * 24 * time.Hour
)

var (
	ErrFailedToGeneratePrivateKey = errors.New("failed to generate private key")
	ErrFailedToCreateCertificate  = errors.New("failed to create certificate")
	ErrFailedToMarshalPrivateKey  = errors.New("failed to marshal private key")
	ErrFailedToWriteDataToCert    = errors.New("failed to write certificate")
	ErrFailedToWriteDataToKey     = errors.New("failed to write private key")
	ErrFailedToCreateCertFile     = errors.New("failed to create certificate file")
	ErrFailedToCreateKeyFile      = errors.New("failed to create key file")
)

// PEMEncoder writes PEM blocks. Tests swap it to fail on a given block.
type PEMEncoder interface {
	Encode(out io.Writer, block *pem.Block) error
}

type DefaultPEMEncoder struct{}

func (d *DefaultPEMEncoder) Encode(out io.Writer, block *pem.Block) error {
	return pem.Encode(out, block) //nolint:wrapcheck
}

// CertificateCreator signs certificates and marshals their keys.
type CertificateCreator interface {
	CreateCertificate(
		rand io.Reader,
		template, parent *x509.Certificate,
		pub, priv any,
	) ([]byte, error)
	MarshalECPrivateKey(key *ecdsa.PrivateKey) ([]byte, error)
}

type DefaultCertCreator struct{}

func (d *DefaultCertCreator) CreateCertificate(
	rand io.Reader,
	template, parent *x509.Certificate,
	pub, priv any,
) ([]byte, error) {
	return x509.CreateCertificate(rand, template, parent, pub, priv) //nolint:wrapcheck
}

func (d *DefaultCertCreator) MarshalECPrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	return x509.MarshalECPrivateKey(key) //nolint:wrapcheck
}

// Generator writes a certificate and key pair into a directory.
type Generator struct {
	CertCreator CertificateCreator
	PEMEncoder  PEMEncoder
	Rand        io.Reader
}

// GenerateCertAndKey writes a self-signed certificate valid for hosts into
// dir and returns the certificate and key paths. Hosts may be DNS names or
// IP addresses; "localhost" and 127.0.0.1 are used when none are given.
// The certificate is usable for server and client authentication.
func GenerateCertAndKey(dir string, hosts ...string) (string, string, error) {
	g := Generator{
		CertCreator: &DefaultCertCreator{},
		PEMEncoder:  &DefaultPEMEncoder{},
		Rand:        rand.Reader,
	}

	return g.Generate(dir, hosts...)
}

func (g Generator) Generate(dir string, hosts ...string) (string, string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), g.Rand)
	if err != nil {
		return "", "", errs.Wrap(ErrFailedToGeneratePrivateKey, err)
	}

	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"Helpdesk Twin"},
			CommonName:   hosts[0],
		},
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(validity),

		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	derBytes, err := g.CertCreator.CreateCertificate(g.Rand, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return "", "", errs.Wrap(ErrFailedToCreateCertificate, err)
	}

	privBytes, err := g.CertCreator.MarshalECPrivateKey(priv)
	if err != nil {
		return "", "", errs.Wrap(ErrFailedToMarshalPrivateKey, err)
	}

	certPath := filepath.Join(dir, CertFileName)

	err = g.write(certPath, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}, ErrFailedToCreateCertFile)
	if err != nil {
		return "", "", errs.Wrap(ErrFailedToWriteDataToCert, err)
	}

	keyPath := filepath.Join(dir, KeyFileName)

	err = g.write(keyPath, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}, ErrFailedToCreateKeyFile)
	if err != nil {
		_ = os.Remove(certPath)
		return "", "", errs.Wrap(ErrFailedToWriteDataToKey, err)
	}

	return certPath, keyPath, nil
}

// write leaves no file behind when encoding fails.
func (g Generator) write(path string, block *pem.Block, createErr error) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errs.Wrap(createErr, err)
	}

	err = g.PEMEncoder.Encode(out, block)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(path)

		return err
	}

	return out.Close()
}
