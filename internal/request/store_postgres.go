package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// PostgresStore persists blood requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema returns the DDL for the blood_requests table. Applied by the
// operator or a migration tool, not at runtime.
func (s *PostgresStore) Schema() string {
	return `
CREATE TABLE IF NOT EXISTS blood_requests (
    id             UUID PRIMARY KEY,
    hospital       TEXT NOT NULL,
    blood_group    TEXT NOT NULL,
    units          INT NOT NULL CHECK (units > 0),
    lat            DOUBLE PRECISION NOT NULL,
    lng            DOUBLE PRECISION NOT NULL,
    urgency        TEXT NOT NULL DEFAULT 'normal',
    status         TEXT NOT NULL,
    reservation_id UUID,
    created_at     TIMESTAMPTZ NOT NULL,
    expires_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS blood_requests_open_expiry
    ON blood_requests (expires_at)
    WHERE status NOT IN ('fulfilled', 'cancelled', 'expired')`
}

func (s *PostgresStore) Get(ctx context.Context, id domain.RequestID) (*BloodRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, hospital, blood_group, units, lat, lng, urgency, status,
		       reservation_id, created_at, expires_at, updated_at
		FROM blood_requests WHERE id = $1`, id.String())

	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Save(ctx context.Context, r *BloodRequest) error {
	var resv sql.NullString
	if r.ReservationID != nil {
		resv = sql.NullString{String: r.ReservationID.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blood_requests (id, hospital, blood_group, units, lat, lng,
		                            urgency, status, reservation_id,
		                            created_at, expires_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
		    hospital = EXCLUDED.hospital,
		    blood_group = EXCLUDED.blood_group,
		    units = EXCLUDED.units,
		    lat = EXCLUDED.lat,
		    lng = EXCLUDED.lng,
		    urgency = EXCLUDED.urgency,
		    status = EXCLUDED.status,
		    reservation_id = EXCLUDED.reservation_id,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at`,
		r.ID.String(), r.Hospital, r.BloodGroup.String(), r.Units,
		r.Location.Lat, r.Location.Lng, string(r.Urgency), string(r.Status),
		resv, r.CreatedAt, r.ExpiresAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	return nil
}

func (s *PostgresStore) DueForExpiry(ctx context.Context, asOf time.Time) ([]*BloodRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hospital, blood_group, units, lat, lng, urgency, status,
		       reservation_id, created_at, expires_at, updated_at
		FROM blood_requests
		WHERE expires_at <= $1
		  AND status NOT IN ('fulfilled', 'cancelled', 'expired')`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list due requests: %w", err)
	}
	defer rows.Close()

	var out []*BloodRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*BloodRequest, error) {
	var (
		rawID   string
		group   string
		urgency string
		status  string
		resv    sql.NullString
		r       BloodRequest
	)
	err := row.Scan(&rawID, &r.Hospital, &group, &r.Units,
		&r.Location.Lat, &r.Location.Lng, &urgency, &status,
		&resv, &r.CreatedAt, &r.ExpiresAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	u, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse request id: %w", err)
	}
	r.ID = domain.RequestID(u)
	r.BloodGroup = domain.BloodGroup(group)
	r.Urgency = Urgency(urgency)
	r.Status = Status(status)
	if resv.Valid {
		ru, err := uuid.Parse(resv.String)
		if err != nil {
			return nil, fmt.Errorf("parse reservation id: %w", err)
		}
		id := domain.ReservationID(ru)
		r.ReservationID = &id
	}
	return &r, nil
}
