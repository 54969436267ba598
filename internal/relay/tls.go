package relay

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// LoadIdentity reads a PKCS#12 bundle (a single certificate, private key,
// and optional CA chain) from path and builds a *tls.Config presenting
// it as the server identity. Per spec.md §4.6, this must run before any
// privilege drop, since the identity file is typically only readable by
// the user the process starts as.
func LoadIdentity(path, password string) (*tls.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay: read tls identity %s: %w", path, err)
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("relay: decode tls identity %s: %w", path, err)
	}

	chain := [][]byte{cert.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}

	pool := x509.NewCertPool()
	for _, ca := range caCerts {
		pool.AddCert(ca)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: chain,
			PrivateKey:  key,
			Leaf:        cert,
		}},
		ClientCAs: pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
