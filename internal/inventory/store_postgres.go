package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// PostgresStore implements the ledger over PostgreSQL. Row locks taken with
// SELECT ... FOR UPDATE serialize check-and-mutate per (bank, group) key,
// so the atomicity contract holds across processes sharing the database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema returns the DDL for the inventory tables.
func (s *PostgresStore) Schema() string {
	return `
CREATE TABLE IF NOT EXISTS blood_banks (
    id     UUID PRIMARY KEY,
    name   TEXT NOT NULL,
    lat    DOUBLE PRECISION NOT NULL,
    lng    DOUBLE PRECISION NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS inventory_records (
    bank_id     UUID NOT NULL REFERENCES blood_banks(id),
    blood_group TEXT NOT NULL,
    available   INTEGER NOT NULL DEFAULT 0 CHECK (available >= 0),
    reserved    INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0),
    capacity    INTEGER NOT NULL DEFAULT 100,
    PRIMARY KEY (bank_id, blood_group),
    CHECK (available + reserved <= capacity)
);
CREATE TABLE IF NOT EXISTS reservations (
    id          UUID PRIMARY KEY,
    request_id  UUID NOT NULL,
    bank_id     UUID NOT NULL,
    blood_group TEXT NOT NULL,
    units       INTEGER NOT NULL CHECK (units > 0),
    state       TEXT NOT NULL,
    expires_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reservations_held_expiry
    ON reservations (expires_at) WHERE state = 'held'`
}

func (s *PostgresStore) GetBank(ctx context.Context, id domain.BloodBankID) (*BloodBank, error) {
	var (
		rawID string
		b     BloodBank
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, lat, lng, active FROM blood_banks WHERE id = $1`,
		id.String()).Scan(&rawID, &b.Name, &b.Location.Lat, &b.Location.Lng, &b.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get bank: %w", err)
	}
	b.ID = id
	return &b, nil
}

func (s *PostgresStore) SaveBank(ctx context.Context, b *BloodBank) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blood_banks (id, name, lat, lng, active)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name, lat = EXCLUDED.lat,
		    lng = EXCLUDED.lng, active = EXCLUDED.active`,
		b.ID.String(), b.Name, b.Location.Lat, b.Location.Lng, b.Active)
	if err != nil {
		return fmt.Errorf("save bank: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBanks(ctx context.Context) ([]*BloodBank, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, lat, lng, active FROM blood_banks`)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	var out []*BloodBank
	for rows.Next() {
		var (
			rawID string
			b     BloodBank
		)
		if err := rows.Scan(&rawID, &b.Name, &b.Location.Lat, &b.Location.Lng, &b.Active); err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		u, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse bank id: %w", err)
		}
		b.ID = domain.BloodBankID(u)
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Availability(ctx context.Context, bankID domain.BloodBankID, groups []domain.BloodGroup) (map[domain.BloodGroup]int, error) {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT blood_group, available FROM inventory_records
		WHERE bank_id = $1 AND blood_group = ANY($2)`,
		bankID.String(), pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.BloodGroup]int, len(groups))
	for _, g := range groups {
		out[g] = 0
	}
	for rows.Next() {
		var (
			group     string
			available int
		)
		if err := rows.Scan(&group, &available); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		out[domain.BloodGroup(group)] = available
	}
	return out, rows.Err()
}

func (s *PostgresStore) Reserve(ctx context.Context, res *Reservation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var available int
		err := tx.QueryRowContext(ctx, `
			SELECT available FROM inventory_records
			WHERE bank_id = $1 AND blood_group = $2 FOR UPDATE`,
			res.BankID.String(), res.Group.String()).Scan(&available)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrInsufficientStock
			}
			return fmt.Errorf("lock record: %w", err)
		}
		if available < res.Units {
			return sentinel.ErrInsufficientStock
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_records
			SET available = available - $3, reserved = reserved + $3
			WHERE bank_id = $1 AND blood_group = $2`,
			res.BankID.String(), res.Group.String(), res.Units)
		if err != nil {
			return fmt.Errorf("apply hold: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations (id, request_id, bank_id, blood_group, units, state, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			res.ID.String(), res.RequestID.String(), res.BankID.String(),
			res.Group.String(), res.Units, string(StateHeld), res.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		res.State = StateHeld
		return nil
	})
}

func (s *PostgresStore) Commit(ctx context.Context, id domain.ReservationID) (*Reservation, error) {
	return s.finishHeld(ctx, id, StateCommitted, `
		UPDATE inventory_records SET reserved = reserved - $3
		WHERE bank_id = $1 AND blood_group = $2`)
}

func (s *PostgresStore) Release(ctx context.Context, id domain.ReservationID) (*Reservation, error) {
	return s.finishHeld(ctx, id, StateReleased, `
		UPDATE inventory_records
		SET reserved = reserved - $3, available = available + $3
		WHERE bank_id = $1 AND blood_group = $2`)
}

// finishHeld moves a held reservation to a terminal state and applies the
// counter update. The row lock on the reservation makes racing
// commit/release calls resolve to exactly one winner.
func (s *PostgresStore) finishHeld(ctx context.Context, id domain.ReservationID, to ReservationState, counterSQL string) (*Reservation, error) {
	var out *Reservation
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := scanReservation(tx.QueryRowContext(ctx, `
			SELECT id, request_id, bank_id, blood_group, units, state, expires_at
			FROM reservations WHERE id = $1 FOR UPDATE`, id.String()))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrUnknownReservation
			}
			return fmt.Errorf("lock reservation: %w", err)
		}
		if res.State != StateHeld {
			return sentinel.ErrUnknownReservation
		}

		if _, err := tx.ExecContext(ctx, `UPDATE reservations SET state = $2 WHERE id = $1`,
			id.String(), string(to)); err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
		if _, err := tx.ExecContext(ctx, counterSQL,
			res.BankID.String(), res.Group.String(), res.Units); err != nil {
			return fmt.Errorf("apply counters: %w", err)
		}

		res.State = to
		out = res
		return nil
	})
	return out, err
}

func (s *PostgresStore) Restock(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*InventoryRecord, error) {
	var out *InventoryRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_records (bank_id, blood_group)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			bankID.String(), group.String()); err != nil {
			return fmt.Errorf("ensure record: %w", err)
		}

		rec := &InventoryRecord{BankID: bankID, Group: group}
		err := tx.QueryRowContext(ctx, `
			SELECT available, reserved, capacity FROM inventory_records
			WHERE bank_id = $1 AND blood_group = $2 FOR UPDATE`,
			bankID.String(), group.String()).Scan(&rec.Available, &rec.Reserved, &rec.Capacity)
		if err != nil {
			return fmt.Errorf("lock record: %w", err)
		}
		if rec.Available+rec.Reserved+units > rec.Capacity {
			return sentinel.ErrCapacityExceeded
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory_records SET available = available + $3
			WHERE bank_id = $1 AND blood_group = $2`,
			bankID.String(), group.String(), units); err != nil {
			return fmt.Errorf("apply restock: %w", err)
		}
		rec.Available += units
		out = rec
		return nil
	})
	return out, err
}

func (s *PostgresStore) SetCapacity(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, capacity int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_records (bank_id, blood_group)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			bankID.String(), group.String()); err != nil {
			return fmt.Errorf("ensure record: %w", err)
		}

		var available, reserved int
		err := tx.QueryRowContext(ctx, `
			SELECT available, reserved FROM inventory_records
			WHERE bank_id = $1 AND blood_group = $2 FOR UPDATE`,
			bankID.String(), group.String()).Scan(&available, &reserved)
		if err != nil {
			return fmt.Errorf("lock record: %w", err)
		}
		if available+reserved > capacity {
			return sentinel.ErrCapacityExceeded
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_records SET capacity = $3
			WHERE bank_id = $1 AND blood_group = $2`,
			bankID.String(), group.String(), capacity)
		if err != nil {
			return fmt.Errorf("apply capacity: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetReservation(ctx context.Context, id domain.ReservationID) (*Reservation, error) {
	res, err := scanReservation(s.db.QueryRowContext(ctx, `
		SELECT id, request_id, bank_id, blood_group, units, state, expires_at
		FROM reservations WHERE id = $1`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) ExpiredHeld(ctx context.Context, asOf time.Time) ([]*Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, bank_id, blood_group, units, state, expires_at
		FROM reservations WHERE state = $1 AND expires_at <= $2`,
		string(StateHeld), asOf)
	if err != nil {
		return nil, fmt.Errorf("expired reservations: %w", err)
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*Reservation, error) {
	var (
		rawID, rawReq, rawBank string
		group, state           string
		res                    Reservation
	)
	err := row.Scan(&rawID, &rawReq, &rawBank, &group, &res.Units, &state, &res.ExpiresAt)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse reservation id: %w", err)
	}
	reqID, err := uuid.Parse(rawReq)
	if err != nil {
		return nil, fmt.Errorf("parse request id: %w", err)
	}
	bankID, err := uuid.Parse(rawBank)
	if err != nil {
		return nil, fmt.Errorf("parse bank id: %w", err)
	}

	res.ID = domain.ReservationID(id)
	res.RequestID = domain.RequestID(reqID)
	res.BankID = domain.BloodBankID(bankID)
	res.Group = domain.BloodGroup(group)
	res.State = ReservationState(state)
	return &res, nil
}
