package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// RedisStore implements the ledger over Redis for deployments where several
// instances share inventory. Each mutation is a single Lua script, so the
// check-and-mutate executes atomically inside the server; no two concurrent
// reserves can jointly over-commit a key.
type RedisStore struct {
	client redis.UniversalClient
}

const (
	bankKeyPrefix  = "hemolink:bank:"
	stockKeyPrefix = "hemolink:stock:"
	resvKeyPrefix  = "hemolink:resv:"
	resvExpiryZSet = "hemolink:resv:expiry"
	banksSet       = "hemolink:banks"
)

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func stockKey(bankID domain.BloodBankID, group domain.BloodGroup) string {
	return stockKeyPrefix + bankID.String() + ":" + group.String()
}

// reserveScript: KEYS[1] stock hash, KEYS[2] reservation hash, KEYS[3]
// expiry zset. ARGV: units, reservation id, request id, bank id, group,
// expiry unix. Returns 1 on success, 0 on insufficient stock.
var reserveScript = redis.NewScript(`
local available = tonumber(redis.call('HGET', KEYS[1], 'available') or '0')
local units = tonumber(ARGV[1])
if available < units then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'available', -units)
redis.call('HINCRBY', KEYS[1], 'reserved', units)
redis.call('HSET', KEYS[2],
  'request_id', ARGV[3], 'bank_id', ARGV[4], 'group', ARGV[5],
  'units', ARGV[1], 'state', 'held', 'expires_at', ARGV[6])
redis.call('ZADD', KEYS[3], tonumber(ARGV[6]), ARGV[2])
return 1
`)

// finishScript: KEYS[1] reservation hash, KEYS[2] stock hash, KEYS[3]
// expiry zset. ARGV[1] target state, ARGV[2] reservation id. The state
// check runs inside the script, so of two racing commit/release calls
// exactly one wins. Returns 1 on success, 0 when the handle is not held.
var finishScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state ~= 'held' then
  return 0
end
local units = tonumber(redis.call('HGET', KEYS[1], 'units'))
redis.call('HSET', KEYS[1], 'state', ARGV[1])
redis.call('HINCRBY', KEYS[2], 'reserved', -units)
if ARGV[1] == 'released' then
  redis.call('HINCRBY', KEYS[2], 'available', units)
end
redis.call('ZREM', KEYS[3], ARGV[2])
return 1
`)

// restockScript: KEYS[1] stock hash. ARGV[1] units, ARGV[2] default
// capacity. Returns {available, reserved, capacity} or false on overflow.
var restockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'available', 0, 'reserved', 0, 'capacity', ARGV[2])
end
local available = tonumber(redis.call('HGET', KEYS[1], 'available'))
local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved'))
local capacity = tonumber(redis.call('HGET', KEYS[1], 'capacity'))
local units = tonumber(ARGV[1])
if available + reserved + units > capacity then
  return false
end
redis.call('HINCRBY', KEYS[1], 'available', units)
return {available + units, reserved, capacity}
`)

// capacityScript: KEYS[1] stock hash. ARGV[1] capacity, ARGV[2] default
// capacity. Returns 1 or false when held units would exceed the new ceiling.
var capacityScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'available', 0, 'reserved', 0, 'capacity', ARGV[2])
end
local available = tonumber(redis.call('HGET', KEYS[1], 'available'))
local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved'))
if available + reserved > tonumber(ARGV[1]) then
  return false
end
redis.call('HSET', KEYS[1], 'capacity', ARGV[1])
return 1
`)

func (s *RedisStore) GetBank(ctx context.Context, id domain.BloodBankID) (*BloodBank, error) {
	vals, err := s.client.HGetAll(ctx, bankKeyPrefix+id.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("get bank: %w", err)
	}
	if len(vals) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return bankFromHash(id, vals)
}

func (s *RedisStore) SaveBank(ctx context.Context, b *BloodBank) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, bankKeyPrefix+b.ID.String(),
		"name", b.Name,
		"lat", b.Location.Lat,
		"lng", b.Location.Lng,
		"active", strconv.FormatBool(b.Active),
	)
	pipe.SAdd(ctx, banksSet, b.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save bank: %w", err)
	}
	return nil
}

func (s *RedisStore) ListBanks(ctx context.Context) ([]*BloodBank, error) {
	ids, err := s.client.SMembers(ctx, banksSet).Result()
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}

	out := make([]*BloodBank, 0, len(ids))
	for _, raw := range ids {
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse bank id: %w", err)
		}
		b, err := s.GetBank(ctx, domain.BloodBankID(u))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *RedisStore) Availability(ctx context.Context, bankID domain.BloodBankID, groups []domain.BloodGroup) (map[domain.BloodGroup]int, error) {
	out := make(map[domain.BloodGroup]int, len(groups))
	for _, g := range groups {
		raw, err := s.client.HGet(ctx, stockKey(bankID, g), "available").Result()
		if err == redis.Nil {
			out[g] = 0
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("availability: %w", err)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse available: %w", err)
		}
		out[g] = n
	}
	return out, nil
}

func (s *RedisStore) Reserve(ctx context.Context, res *Reservation) error {
	keys := []string{
		stockKey(res.BankID, res.Group),
		resvKeyPrefix + res.ID.String(),
		resvExpiryZSet,
	}
	ok, err := reserveScript.Run(ctx, s.client, keys,
		res.Units, res.ID.String(), res.RequestID.String(),
		res.BankID.String(), res.Group.String(), res.ExpiresAt.Unix(),
	).Int()
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	if ok == 0 {
		return sentinel.ErrInsufficientStock
	}
	res.State = StateHeld
	return nil
}

func (s *RedisStore) Commit(ctx context.Context, id domain.ReservationID) (*Reservation, error) {
	return s.finishHeld(ctx, id, StateCommitted)
}

func (s *RedisStore) Release(ctx context.Context, id domain.ReservationID) (*Reservation, error) {
	return s.finishHeld(ctx, id, StateReleased)
}

func (s *RedisStore) finishHeld(ctx context.Context, id domain.ReservationID, to ReservationState) (*Reservation, error) {
	// Bank and group are immutable on a reservation, so the stock key can
	// be resolved with a plain read; only the state check must be atomic,
	// and that happens inside the script.
	res, err := s.GetReservation(ctx, id)
	if err != nil {
		if err == sentinel.ErrNotFound {
			return nil, sentinel.ErrUnknownReservation
		}
		return nil, err
	}

	keys := []string{
		resvKeyPrefix + id.String(),
		stockKey(res.BankID, res.Group),
		resvExpiryZSet,
	}
	ok, err := finishScript.Run(ctx, s.client, keys, string(to), id.String()).Int()
	if err != nil {
		return nil, fmt.Errorf("finish reservation: %w", err)
	}
	if ok == 0 {
		return nil, sentinel.ErrUnknownReservation
	}
	res.State = to
	return res, nil
}

func bankFromHash(id domain.BloodBankID, vals map[string]string) (*BloodBank, error) {
	lat, err := strconv.ParseFloat(vals["lat"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse bank lat: %w", err)
	}
	lng, err := strconv.ParseFloat(vals["lng"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse bank lng: %w", err)
	}
	return &BloodBank{
		ID:       id,
		Name:     vals["name"],
		Location: domain.Point{Lat: lat, Lng: lng},
		Active:   vals["active"] == "true",
	}, nil
}

func (s *RedisStore) Restock(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*InventoryRecord, error) {
	raw, err := restockScript.Run(ctx, s.client, []string{stockKey(bankID, group)}, units, DefaultCapacity).Result()
	if err == redis.Nil {
		return nil, sentinel.ErrCapacityExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("restock: %w", err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return nil, fmt.Errorf("restock: unexpected script reply %v", raw)
	}
	return &InventoryRecord{
		BankID:    bankID,
		Group:     group,
		Available: int(vals[0].(int64)),
		Reserved:  int(vals[1].(int64)),
		Capacity:  int(vals[2].(int64)),
	}, nil
}

func (s *RedisStore) SetCapacity(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, capacity int) error {
	err := capacityScript.Run(ctx, s.client, []string{stockKey(bankID, group)}, capacity, DefaultCapacity).Err()
	if err == redis.Nil {
		return sentinel.ErrCapacityExceeded
	}
	if err != nil {
		return fmt.Errorf("set capacity: %w", err)
	}
	return nil
}

func (s *RedisStore) GetReservation(ctx context.Context, id domain.ReservationID) (*Reservation, error) {
	vals, err := s.client.HGetAll(ctx, resvKeyPrefix+id.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if len(vals) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return reservationFromHash(id, vals)
}

func (s *RedisStore) ExpiredHeld(ctx context.Context, asOf time.Time) ([]*Reservation, error) {
	ids, err := s.client.ZRangeByScore(ctx, resvExpiryZSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(asOf.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("expired reservations: %w", err)
	}

	var out []*Reservation
	for _, raw := range ids {
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse reservation id: %w", err)
		}
		res, err := s.GetReservation(ctx, domain.ReservationID(u))
		if err != nil {
			return nil, err
		}
		if res.State == StateHeld {
			out = append(out, res)
		}
	}
	return out, nil
}

func reservationFromHash(id domain.ReservationID, vals map[string]string) (*Reservation, error) {
	reqID, err := uuid.Parse(vals["request_id"])
	if err != nil {
		return nil, fmt.Errorf("parse request id: %w", err)
	}
	bankID, err := uuid.Parse(vals["bank_id"])
	if err != nil {
		return nil, fmt.Errorf("parse bank id: %w", err)
	}
	units, err := strconv.Atoi(vals["units"])
	if err != nil {
		return nil, fmt.Errorf("parse units: %w", err)
	}
	expiry, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	return &Reservation{
		ID:        id,
		RequestID: domain.RequestID(reqID),
		BankID:    domain.BloodBankID(bankID),
		Group:     domain.BloodGroup(vals["group"]),
		Units:     units,
		State:     ReservationState(vals["state"]),
		ExpiresAt: time.Unix(expiry, 0).UTC(),
	}, nil
}
