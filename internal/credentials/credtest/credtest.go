// Package credtest generates throwaway client certificates for tests.
package credtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fisconforme-backend/internal/credentials"
	"math/big"
	"testing"
	"time"
)

// KeyPair returns a self-signed certificate and its private key as PEM.
func KeyPair(t testing.TB, commonName string) (certPEM []byte, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDer, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDer})
	return certPEM, keyPEM
}

// Credential returns a valid credential for the tenant, the material is base64
// encoded the way the hosted table stores it.
func Credential(t testing.TB, tenant, entityID, legalName string) credentials.EntityCredential {
	t.Helper()
	certPEM, keyPEM := KeyPair(t, legalName)
	return credentials.EntityCredential{
		EntityID:           entityID,
		Tenant:             tenant,
		LegalName:          legalName,
		Code:               entityID,
		RegistrationNumber: "00.000.000/0001-00",
		DueDate:            "31/12/2030",
		CertificatePEM:     []byte(base64.StdEncoding.EncodeToString(certPEM)),
		PrivateKeyPEM:      []byte(base64.StdEncoding.EncodeToString(keyPEM)),
	}
}

// Malformed returns a credential whose key material cannot be decoded.
func Malformed(tenant, entityID, legalName string) credentials.EntityCredential {
	return credentials.EntityCredential{
		EntityID:       entityID,
		Tenant:         tenant,
		LegalName:      legalName,
		Code:           entityID,
		CertificatePEM: []byte("not a certificate"),
		PrivateKeyPEM:  []byte("not a key"),
	}
}
