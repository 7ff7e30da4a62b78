package credentials

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// FromPKCS12 converts a .pfx/.p12 bundle into the certificate and key PEM
// documents stored by the providers.
func FromPKCS12(data []byte, password string) (certPEM []byte, keyPEM []byte, err error) {
	if len(data) == 0 {
		return nil, nil, ErrMissingMaterial
	}

	privateKey, certificate, err := pkcs12.Decode(data, password)
	if err == nil {
		keyDer, err := x509.MarshalPKCS8PrivateKey(privateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMalformedMaterial, err.Error())
		}
		certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certificate.Raw})
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDer})
		return certPEM, keyPEM, nil
	}

	// bundles that carry the full chain are rejected by Decode
	blocks, chainErr := pkcs12.ToPEM(data, password)
	if chainErr != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMalformedMaterial, err.Error())
	}
	for _, block := range blocks {
		encoded := pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: block.Bytes})
		switch {
		case block.Type == "CERTIFICATE":
			certPEM = append(certPEM, encoded...)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			keyPEM = append(keyPEM, encoded...)
		}
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return nil, nil, fmt.Errorf("%w: bundle has no certificate or key", ErrMalformedMaterial)
	}
	return certPEM, keyPEM, nil
}
