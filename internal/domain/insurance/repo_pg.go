package insurance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/careguard/internal/platform/db"
)

// =========== Policy Repository ===========

type policyRepoPG struct{ pool *pgxpool.Pool }

func NewPolicyRepoPG(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepoPG{pool: pool}
}

const policyCols = `id, patient_id, provider_name, policy_number, group_number, coverage_type,
	start_date, end_date, is_active, created_at, updated_at`

func scanPolicy(row pgx.Row) (*Policy, error) {
	var p Policy
	err := row.Scan(&p.ID, &p.PatientID, &p.ProviderName, &p.PolicyNumber, &p.GroupNumber, &p.CoverageType,
		&p.StartDate, &p.EndDate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *policyRepoPG) Create(ctx context.Context, p *Policy) error {
	p.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO insurance_policy (id, patient_id, provider_name, policy_number, group_number,
			coverage_type, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.ProviderName, p.PolicyNumber, p.GroupNumber,
		p.CoverageType, p.StartDate, p.EndDate, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *policyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Policy, error) {
	return scanPolicy(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+policyCols+` FROM insurance_policy WHERE id = $1`, id))
}

func (r *policyRepoPG) Update(ctx context.Context, p *Policy) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE insurance_policy SET provider_name = $2, group_number = $3, coverage_type = $4,
			end_date = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.ProviderName, p.GroupNumber, p.CoverageType, p.EndDate, p.IsActive,
	).Scan(&p.UpdatedAt)
}

func (r *policyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM insurance_policy WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *policyRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Policy, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM insurance_policy WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+policyCols+` FROM insurance_policy
		WHERE patient_id = $1 ORDER BY start_date DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Claim Repository ===========

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) ClaimRepository {
	return &claimRepoPG{pool: pool}
}

const claimCols = `id, policy_id, claim_number, service_date, amount_cents, status, description,
	created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.PolicyID, &c.ClaimNumber, &c.ServiceDate, &c.AmountCents, &c.Status,
		&c.Description, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO insurance_claim (id, policy_id, claim_number, service_date, amount_cents, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.ID, c.PolicyID, c.ClaimNumber, c.ServiceDate, c.AmountCents, c.Status, c.Description,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+claimCols+` FROM insurance_claim WHERE id = $1`, id))
}

func (r *claimRepoPG) UpdateStatus(ctx context.Context, c *Claim, from ClaimStatus) (bool, error) {
	c.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE insurance_claim SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4`,
		c.ID, c.Status, c.UpdatedAt, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *claimRepoPG) CountByPolicy(ctx context.Context, policyID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM insurance_claim WHERE policy_id = $1`, policyID).Scan(&n)
	return n, err
}
