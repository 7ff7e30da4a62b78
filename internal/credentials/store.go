package credentials

import (
	"context"
	"database/sql"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/credentials/db"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// DatabaseConfig points either at a local sqlite file or a remote libsql server.
type DatabaseConfig struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config DatabaseConfig) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		dsn, err := url.Parse(config.Url)
		if err != nil {
			return nil, err
		}
		if config.AuthToken != "" {
			query := dsn.Query()
			query.Set("authToken", config.AuthToken)
			dsn.RawQuery = query.Encode()
		}
		return sql.Open("libsql", dsn.String())
	}
	if config.File == "" {
		return nil, fmt.Errorf("neither a database file nor a url was specified")
	}
	if config.File != ":memory:" {
		err := os.MkdirAll(filepath.Dir(config.File), 0700)
		if err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	database.SetMaxOpenConns(1)
	_, err = database.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	return database, nil
}

// Store is a Provider backed by the entity_credential table.
type Store struct {
	db  *sql.DB
	qry *db.Queries
}

// NewStore creates the schema when it is missing.
func NewStore(ctx context.Context, database *sql.DB) (Store, error) {
	assert.NotNil(database)
	_, err := database.ExecContext(ctx, db.Schema)
	if err != nil {
		return Store{}, fmt.Errorf("apply schema: %w", err)
	}
	return Store{
		db:  database,
		qry: db.New(database),
	}, nil
}

func (s Store) Lookup(ctx context.Context, tenant string) ([]EntityCredential, error) {
	rows, err := s.qry.ListEntityCredentials(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	out := make([]EntityCredential, len(rows))
	for i, r := range rows {
		out[i] = EntityCredential{
			EntityID:           r.EntityID,
			Tenant:             r.Tenant,
			LegalName:          r.LegalName,
			Code:               r.Code,
			RegistrationNumber: r.RegistrationNumber,
			DueDate:            r.DueDate,
			CertificatePEM:     r.CertificatePem,
			PrivateKeyPEM:      r.PrivateKeyPem,
		}
	}
	return out, nil
}

type TenantSummary struct {
	Tenant   string
	Entities int64
}

func (s Store) Tenants(ctx context.Context) ([]TenantSummary, error) {
	rows, err := s.qry.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	out := make([]TenantSummary, len(rows))
	for i, r := range rows {
		out[i] = TenantSummary{Tenant: r.Tenant, Entities: r.Entities}
	}
	return out, nil
}

// Put validates and upserts every credential in a single transaction.
func (s Store) Put(ctx context.Context, creds ...EntityCredential) error {
	validated := make([]EntityCredential, len(creds))
	for i, c := range creds {
		v, err := New(c)
		if err != nil {
			return fmt.Errorf("credential %q: %w", c.EntityID, err)
		}
		validated[i] = v
	}

	now := time.Now().Unix()
	return db.WithTx(ctx, s.db, func(tx *db.Queries) error {
		for _, c := range validated {
			err := tx.UpsertEntityCredential(ctx, db.UpsertEntityCredentialParams{
				Tenant:             c.Tenant,
				EntityID:           c.EntityID,
				LegalName:          c.LegalName,
				Code:               c.Code,
				RegistrationNumber: c.RegistrationNumber,
				DueDate:            c.DueDate,
				CertificatePem:     c.CertificatePEM,
				PrivateKeyPem:      c.PrivateKeyPEM,
				UpdatedAt:          now,
			})
			if err != nil {
				return fmt.Errorf("upsert credential %q: %w", c.EntityID, err)
			}
		}
		return nil
	})
}

// Delete reports whether a credential was removed.
func (s Store) Delete(ctx context.Context, tenant, entityID string) (bool, error) {
	n, err := s.qry.DeleteEntityCredential(ctx, db.DeleteEntityCredentialParams{
		Tenant:   tenant,
		EntityID: entityID,
	})
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	return n > 0, nil
}
