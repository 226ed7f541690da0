package donor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// PostgresStore persists donor profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema returns the DDL for the donors table. Applied by the operator or a
// migration tool, not at runtime.
func (s *PostgresStore) Schema() string {
	return `
CREATE TABLE IF NOT EXISTS donors (
    id                UUID PRIMARY KEY,
    name              TEXT NOT NULL,
    blood_group       TEXT NOT NULL DEFAULT '',
    date_of_birth     DATE,
    weight_kg         DOUBLE PRECISION,
    smoker            BOOLEAN NOT NULL DEFAULT FALSE,
    chronic_condition BOOLEAN NOT NULL DEFAULT FALSE,
    chronic_cleared   BOOLEAN NOT NULL DEFAULT FALSE,
    last_donation     DATE,
    lat               DOUBLE PRECISION NOT NULL,
    lng               DOUBLE PRECISION NOT NULL,
    active            BOOLEAN NOT NULL DEFAULT TRUE,
    verified          BOOLEAN NOT NULL DEFAULT FALSE
)`
}

func (s *PostgresStore) Get(ctx context.Context, id domain.DonorID) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, blood_group, date_of_birth, weight_kg, smoker,
		       chronic_condition, chronic_cleared, last_donation, lat, lng,
		       active, verified
		FROM donors WHERE id = $1`, id.String())

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get donor: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *Profile) error {
	var dob, last sql.NullTime
	if p.DateOfBirth != nil {
		dob = sql.NullTime{Time: *p.DateOfBirth, Valid: true}
	}
	if p.LastDonation != nil {
		last = sql.NullTime{Time: *p.LastDonation, Valid: true}
	}
	var weight sql.NullFloat64
	if p.WeightKg != nil {
		weight = sql.NullFloat64{Float64: *p.WeightKg, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO donors (id, name, blood_group, date_of_birth, weight_kg,
		                    smoker, chronic_condition, chronic_cleared,
		                    last_donation, lat, lng, active, verified)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name,
		    blood_group = EXCLUDED.blood_group,
		    date_of_birth = EXCLUDED.date_of_birth,
		    weight_kg = EXCLUDED.weight_kg,
		    smoker = EXCLUDED.smoker,
		    chronic_condition = EXCLUDED.chronic_condition,
		    chronic_cleared = EXCLUDED.chronic_cleared,
		    last_donation = EXCLUDED.last_donation,
		    lat = EXCLUDED.lat,
		    lng = EXCLUDED.lng,
		    active = EXCLUDED.active,
		    verified = EXCLUDED.verified`,
		p.ID.String(), p.Name, p.BloodGroup.String(), dob, weight,
		p.Smoker, p.ChronicCondition, p.ChronicCleared, last,
		p.Location.Lat, p.Location.Lng, p.Active, p.Verified)
	if err != nil {
		return fmt.Errorf("save donor: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, blood_group, date_of_birth, weight_kg, smoker,
		       chronic_condition, chronic_cleared, last_donation, lat, lng,
		       active, verified
		FROM donors`)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var (
		rawID  string
		group  string
		dob    sql.NullTime
		weight sql.NullFloat64
		last   sql.NullTime
		p      Profile
	)
	err := row.Scan(&rawID, &p.Name, &group, &dob, &weight, &p.Smoker,
		&p.ChronicCondition, &p.ChronicCleared, &last,
		&p.Location.Lat, &p.Location.Lng, &p.Active, &p.Verified)
	if err != nil {
		return nil, err
	}

	u, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse donor id: %w", err)
	}
	p.ID = domain.DonorID(u)
	p.BloodGroup = domain.BloodGroup(group)
	if dob.Valid {
		t := dob.Time
		p.DateOfBirth = &t
	}
	if weight.Valid {
		w := weight.Float64
		p.WeightKg = &w
	}
	if last.Valid {
		t := last.Time
		p.LastDonation = &t
	}
	return &p, nil
}
