package credentials

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"
)

// Identity is a decoded client certificate ready to be attached to a transport.
// It owns copies of the PEM buffers so Erase can wipe them.
type Identity struct {
	Certificate tls.Certificate
	NotAfter    time.Time
	Subject     string

	certPEM []byte
	keyPEM  []byte
}

var pemMarker = []byte("-----BEGIN")

// decodeMaterial accepts raw PEM or base64 encoded PEM.
func decodeMaterial(material []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(material)
	if len(trimmed) == 0 {
		return nil, ErrMissingMaterial
	}
	if bytes.Contains(trimmed, pemMarker) {
		out := make([]byte, len(trimmed))
		copy(out, trimmed)
		return out, nil
	}

	compact := bytes.Join(bytes.Fields(trimmed), nil)
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(compact)))
	n, err := base64.StdEncoding.Decode(decoded, compact)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMaterial, err.Error())
	}
	decoded = decoded[:n]
	if !bytes.Contains(decoded, pemMarker) {
		return nil, fmt.Errorf("%w: not a pem document", ErrMalformedMaterial)
	}
	return decoded, nil
}

// Identity decodes the credential into a tls certificate. It never returns a
// partially built identity.
func (c EntityCredential) Identity() (*Identity, error) {
	certPEM, err := decodeMaterial(c.CertificatePEM)
	if err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}
	keyPEM, err := decodeMaterial(c.PrivateKeyPEM)
	if err != nil {
		zero(certPEM)
		return nil, fmt.Errorf("private key: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		zero(certPEM)
		zero(keyPEM)
		return nil, fmt.Errorf("%w: %s", ErrMalformedMaterial, err.Error())
	}

	identity := &Identity{
		Certificate: cert,
		certPEM:     certPEM,
		keyPEM:      keyPEM,
	}
	if len(cert.Certificate) > 0 {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err == nil {
			identity.NotAfter = leaf.NotAfter
			identity.Subject = leaf.Subject.CommonName
			identity.Certificate.Leaf = leaf
		}
	}
	return identity, nil
}

// Erase wipes the decoded PEM buffers and drops the key references, the
// identity cannot be used afterwards.
func (i *Identity) Erase() {
	if i == nil {
		return
	}
	zero(i.certPEM)
	zero(i.keyPEM)
	i.certPEM = nil
	i.keyPEM = nil
	i.Certificate = tls.Certificate{}
}

// Erased reports whether Erase was called.
func (i *Identity) Erased() bool {
	return i.certPEM == nil && i.keyPEM == nil && i.Certificate.PrivateKey == nil
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
