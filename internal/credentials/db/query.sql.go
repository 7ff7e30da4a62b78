package db

import (
	"context"
)

const listEntityCredentials = `-- name: ListEntityCredentials :many
select tenant, entity_id, legal_name, code, registration_number, due_date, certificate_pem, private_key_pem, updated_at from entity_credential
where tenant = ?
order by code, entity_id
`

func (q *Queries) ListEntityCredentials(ctx context.Context, tenant string) ([]EntityCredential, error) {
	rows, err := q.db.QueryContext(ctx, listEntityCredentials, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EntityCredential
	for rows.Next() {
		var i EntityCredential
		if err := rows.Scan(
			&i.Tenant,
			&i.EntityID,
			&i.LegalName,
			&i.Code,
			&i.RegistrationNumber,
			&i.DueDate,
			&i.CertificatePem,
			&i.PrivateKeyPem,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTenants = `-- name: ListTenants :many
select tenant, count(*) as entities from entity_credential
group by tenant
order by tenant
`

type ListTenantsRow struct {
	Tenant   string
	Entities int64
}

func (q *Queries) ListTenants(ctx context.Context) ([]ListTenantsRow, error) {
	rows, err := q.db.QueryContext(ctx, listTenants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListTenantsRow
	for rows.Next() {
		var i ListTenantsRow
		if err := rows.Scan(&i.Tenant, &i.Entities); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertEntityCredential = `-- name: UpsertEntityCredential :exec
insert into entity_credential (
    tenant, entity_id, legal_name, code, registration_number,
    due_date, certificate_pem, private_key_pem, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (tenant, entity_id) do update set
    legal_name = excluded.legal_name,
    code = excluded.code,
    registration_number = excluded.registration_number,
    due_date = excluded.due_date,
    certificate_pem = excluded.certificate_pem,
    private_key_pem = excluded.private_key_pem,
    updated_at = excluded.updated_at
`

type UpsertEntityCredentialParams struct {
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

func (q *Queries) UpsertEntityCredential(ctx context.Context, arg UpsertEntityCredentialParams) error {
	_, err := q.db.ExecContext(ctx, upsertEntityCredential,
		arg.Tenant,
		arg.EntityID,
		arg.LegalName,
		arg.Code,
		arg.RegistrationNumber,
		arg.DueDate,
		arg.CertificatePem,
		arg.PrivateKeyPem,
		arg.UpdatedAt,
	)
	return err
}

const deleteEntityCredential = `-- name: DeleteEntityCredential :execrows
delete from entity_credential
where tenant = ? and entity_id = ?
`

type DeleteEntityCredentialParams struct {
	Tenant   string
	EntityID string
}

func (q *Queries) DeleteEntityCredential(ctx context.Context, arg DeleteEntityCredentialParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteEntityCredential, arg.Tenant, arg.EntityID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
