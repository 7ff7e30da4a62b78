package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingMaterial is returned when the certificate or the private key is empty.
	ErrMissingMaterial = errors.New("certificate or private key material is missing")
	// ErrMalformedMaterial is returned when the material cannot be decoded into a key pair.
	ErrMalformedMaterial = errors.New("certificate or private key material is malformed")
)

// EntityCredential is one taxpayer identity of a tenant. The PEM material is
// kept either raw or base64 encoded, it is only decoded by Identity.
type EntityCredential struct {
	EntityID           string `json:"entityId"`
	Tenant             string `json:"tenant"`
	LegalName          string `json:"legalName"`
	Code               string `json:"code"`
	RegistrationNumber string `json:"registrationNumber"`
	DueDate            string `json:"dueDate"`

	CertificatePEM []byte `json:"-"`
	PrivateKeyPEM  []byte `json:"-"`
}

// New validates the record, rejecting empty identifiers and empty key material.
func New(cred EntityCredential) (EntityCredential, error) {
	cred.EntityID = strings.TrimSpace(cred.EntityID)
	cred.Tenant = strings.TrimSpace(cred.Tenant)
	cred.LegalName = strings.TrimSpace(cred.LegalName)
	cred.Code = strings.TrimSpace(cred.Code)

	if cred.EntityID == "" {
		return EntityCredential{}, fmt.Errorf("entity id is empty")
	}
	if cred.Tenant == "" {
		return EntityCredential{}, fmt.Errorf("tenant is empty")
	}
	err := cred.Validate()
	if err != nil {
		return EntityCredential{}, err
	}
	return cred, nil
}

// Validate checks the key material is present and decodes into a key pair.
func (c EntityCredential) Validate() error {
	identity, err := c.Identity()
	if err != nil {
		return err
	}
	identity.Erase()
	return nil
}

// DisplayName is the legal name, or the entity id when there is none.
func (c EntityCredential) DisplayName() string {
	if c.LegalName != "" {
		return c.LegalName
	}
	return c.EntityID
}

// Provider returns the credentials registered for a tenant.
type Provider interface {
	Lookup(ctx context.Context, tenant string) ([]EntityCredential, error)
}
