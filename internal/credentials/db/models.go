package db

type EntityCredential struct {
	Tenant             string
	EntityID           string
	LegalName          string
	Code               string
	RegistrationNumber string
	DueDate            string
	CertificatePem     []byte
	PrivateKeyPem      []byte
	UpdatedAt          int64
}
