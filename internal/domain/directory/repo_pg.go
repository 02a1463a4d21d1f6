package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/careguard/internal/platform/db"
	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
)

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

const userCols = `id, email, phone, first_name, last_name, role, facility_id, status,
	created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.FirstName, &u.LastName, &u.Role,
		&u.FacilityID, &u.Status, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	return &u, err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userCols+` FROM app_user WHERE id = $1 AND status <> 'DELETED'`, id))
}

func (r *userRepoPG) UpdateRole(ctx context.Context, id uuid.UUID, role policy.Role) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE app_user SET role = $2, updated_at = NOW() WHERE id = $1 AND status <> 'DELETED'`, id, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status UserStatus, at time.Time) error {
	var deletedAt *time.Time
	if status == StatusDeleted {
		deletedAt = &at
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE app_user SET status = $2, deleted_at = $3, updated_at = $4
		WHERE id = $1 AND status <> 'DELETED'`, id, status, deletedAt, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepoPG) ListActive(ctx context.Context, q notification.UserQuery) ([]*User, error) {
	where := []string{`status = 'ACTIVE'`}
	var args []any
	if q.FacilityID != nil {
		args = append(args, *q.FacilityID)
		where = append(where, fmt.Sprintf("facility_id = $%d", len(args)))
	}
	if len(q.Roles) > 0 {
		roles := make([]string, len(q.Roles))
		for i, role := range q.Roles {
			roles[i] = string(role)
		}
		args = append(args, roles)
		where = append(where, fmt.Sprintf("role = ANY($%d)", len(args)))
	}
	return r.query(ctx, `SELECT `+userCols+` FROM app_user WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at`, args...)
}

func (r *userRepoPG) GetActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error) {
	return r.query(ctx, `SELECT `+userCols+` FROM app_user WHERE status = 'ACTIVE' AND id = ANY($1)`, ids)
}

func (r *userRepoPG) query(ctx context.Context, sql string, args ...any) ([]*User, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, user_id, facility_id, mrn, date_of_birth, gender, address,
	emergency_contact, created_at, updated_at`

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.FacilityID, &p.MRN, &p.DateOfBirth, &p.Gender, &p.Address,
			&p.EmergencyContact, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET date_of_birth=$2, gender=$3, address=$4, emergency_contact=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.DateOfBirth, p.Gender, p.Address, p.EmergencyContact).Scan(&p.UpdatedAt)
}

// =========== Provider Repository ===========

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

const providerSelect = `
	SELECT pr.id, pr.user_id, pr.facility_id, pr.specialty, pr.license_number, pr.npi, pr.bio,
		pr.accepting_patients, pr.created_at, pr.updated_at,
		u.first_name, u.last_name, u.email, u.phone
	FROM provider pr JOIN app_user u ON u.id = pr.user_id`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.UserID, &p.FacilityID, &p.Specialty, &p.LicenseNumber, &p.NPI, &p.Bio,
		&p.AcceptingPatients, &p.CreatedAt, &p.UpdatedAt,
		&p.FirstName, &p.LastName, &p.Email, &p.Phone)
	return &p, err
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return scanProvider(db.Conn(ctx, r.pool).QueryRow(ctx, providerSelect+` WHERE pr.id = $1 AND u.status <> 'DELETED'`, id))
}

func (r *providerRepoPG) List(ctx context.Context, f ProviderFilter, limit, offset int) ([]*Provider, int, error) {
	where := []string{`u.status = 'ACTIVE'`}
	var args []any
	if f.FacilityID != nil {
		args = append(args, *f.FacilityID)
		where = append(where, fmt.Sprintf("pr.facility_id = $%d", len(args)))
	}
	if f.Specialty != "" {
		args = append(args, f.Specialty)
		where = append(where, fmt.Sprintf("pr.specialty ILIKE $%d", len(args)))
	}
	if f.AcceptingPatients != nil {
		args = append(args, *f.AcceptingPatients)
		where = append(where, fmt.Sprintf("pr.accepting_patients = $%d", len(args)))
	}
	cond := ` WHERE ` + strings.Join(where, " AND ")

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM provider pr JOIN app_user u ON u.id = pr.user_id`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, providerSelect+cond+
		fmt.Sprintf(` ORDER BY u.last_name, u.first_name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *providerRepoPG) Update(ctx context.Context, p *Provider) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE provider SET specialty=$2, bio=$3, accepting_patients=$4, license_number=$5, npi=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Specialty, p.Bio, p.AcceptingPatients, p.LicenseNumber, p.NPI).Scan(&p.UpdatedAt)
}
