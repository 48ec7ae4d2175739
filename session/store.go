package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusNotFound      int64 = 0
	statusOwnerMismatch int64 = 1
	statusStale         int64 = 2
	statusApplied       int64 = 3
)

const rotateScript = `
local session_key = KEYS[1]
local user_key = KEYS[2]
local uid = ARGV[1]
local expected_iat = ARGV[2]

local stored_uid = redis.call("HGET", session_key, "uid")
if not stored_uid then
  return 0
end
if stored_uid ~= uid then
  return 1
end
if redis.call("HGET", session_key, "iat") ~= expected_iat then
  return 2
end

redis.call("HSET", session_key, "iat", ARGV[3], "exp", ARGV[4], "ip", ARGV[5], "title", ARGV[6])
redis.call("PEXPIRE", session_key, ARGV[8])
redis.call("SADD", user_key, ARGV[7])
return 3
`

var rotateLua = redis.NewScript(rotateScript)

const deleteScript = `
local session_key = KEYS[1]
local user_key = KEYS[2]
local uid = ARGV[1]
local expected_iat = ARGV[2]
local device_id = ARGV[3]

local stored_uid = redis.call("HGET", session_key, "uid")
if not stored_uid then
  redis.call("SREM", user_key, device_id)
  return 0
end
if stored_uid ~= uid then
  return 1
end
if expected_iat ~= "" and redis.call("HGET", session_key, "iat") ~= expected_iat then
  return 2
end

redis.call("DEL", session_key)
redis.call("SREM", user_key, device_id)
return 3
`

var deleteLua = redis.NewScript(deleteScript)

const deleteAllExceptScript = `
local user_key = KEYS[1]
local device_prefix = ARGV[1]
local keep = ARGV[2]
local uid = ARGV[3]

local removed = 0
for _, device_id in ipairs(redis.call("SMEMBERS", user_key)) do
  if device_id ~= keep then
    local session_key = device_prefix .. device_id
    if redis.call("HGET", session_key, "uid") == uid then
      redis.call("DEL", session_key)
      removed = removed + 1
    end
    redis.call("SREM", user_key, device_id)
  end
end
return removed
`

var deleteAllExceptLua = redis.NewScript(deleteAllExceptScript)

// Option customizes a [Store].
type Option func(*Store)

// WithClock overrides the time source used to derive key TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is a Redis-backed session store with atomic rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(rdb redis.UniversalClient, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = "das"
	}
	s := &Store{
		redis:  rdb,
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) deviceKey(deviceID string) string {
	return s.devicePrefix() + deviceID
}

func (s *Store) devicePrefix() string {
	return s.prefix + ":d:"
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Create writes rec as the session for rec.DeviceID, replacing any previous
// row for that device, and indexes it under its owner.
//
//	Performance: 1 MULTI/EXEC round trip (DEL + HSET + PEXPIRE + SADD).
func (s *Store) Create(ctx context.Context, rec Record) error {
	rec = rec.Truncate()
	key := s.deviceKey(rec.DeviceID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeFields(rec))
		pipe.PExpire(ctx, key, rec.TTL(s.now()))
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.DeviceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns the session for deviceID or [ErrSessionNotFound].
func (s *Store) Get(ctx context.Context, deviceID string) (Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.deviceKey(deviceID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrSessionNotFound
	}
	return decodeFields(deviceID, fields)
}

// Rotate replaces the session for next.DeviceID only if it is still owned by
// next.UserID and its stored issuance time equals expectedIssuedAt. On any
// mismatch nothing is written.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
//	Security: at most one of several concurrent rotations of the same
//	lineage can observe the expected issuance time.
func (s *Store) Rotate(ctx context.Context, expectedIssuedAt time.Time, next Record) error {
	next = next.Truncate()

	code, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.deviceKey(next.DeviceID), s.userKey(next.UserID)},
		next.UserID,
		unixString(expectedIssuedAt),
		unixString(next.IssuedAt),
		unixString(next.ExpiresAt),
		next.IP,
		next.Title,
		next.DeviceID,
		next.TTL(s.now()).Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return statusError(code)
}

// Delete removes the session for deviceID if it is owned by userID. When
// issuedAt is non-zero the stored issuance time must match as well.
//
// A missing row also drops the device from the owner's index, so repeated
// calls converge on a clean index.
func (s *Store) Delete(ctx context.Context, userID, deviceID string, issuedAt time.Time) error {
	expected := ""
	if !issuedAt.IsZero() {
		expected = unixString(issuedAt)
	}

	code, err := deleteLua.Run(
		ctx,
		s.redis,
		[]string{s.deviceKey(deviceID), s.userKey(userID)},
		userID,
		expected,
		deviceID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return statusError(code)
}

// DeleteAllExcept removes every session owned by userID other than
// keepDeviceID and returns how many rows were deleted.
func (s *Store) DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int, error) {
	removed, err := deleteAllExceptLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(userID)},
		s.devicePrefix(),
		keepDeviceID,
		userID,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(removed), nil
}

// ListByUser returns all live sessions owned by userID, newest first.
// Index entries whose hash has expired are removed as a side effect.
//
//	Performance: 1 SMEMBERS + 1 pipelined batch of HGETALL.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	userKey := s.userKey(userID)

	deviceIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(deviceIDs) == 0 {
		return []Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(deviceIDs))
	for i, deviceID := range deviceIDs {
		cmds[i] = pipe.HGetAll(ctx, s.deviceKey(deviceID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]Record, 0, len(deviceIDs))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(fields) == 0 || fields["uid"] != userID {
			stale = append(stale, deviceIDs[i])
			continue
		}
		rec, err := decodeFields(deviceIDs[i], fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	SortNewestFirst(records)
	return records, nil
}

// Ping reports Redis availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

// SortNewestFirst orders records by issuance time, newest first, breaking
// ties by device ID so output is deterministic.
func SortNewestFirst(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].IssuedAt.Equal(records[j].IssuedAt) {
			return records[i].IssuedAt.After(records[j].IssuedAt)
		}
		return records[i].DeviceID < records[j].DeviceID
	})
}

func statusError(code int64) error {
	switch code {
	case statusApplied:
		return nil
	case statusNotFound:
		return ErrSessionNotFound
	case statusOwnerMismatch:
		return ErrOwnerMismatch
	case statusStale:
		return ErrIssuedAtMismatch
	default:
		return fmt.Errorf("%w: unknown script status %d", ErrStoreUnavailable, code)
	}
}

func encodeFields(rec Record) map[string]interface{} {
	return map[string]interface{}{
		"uid":   rec.UserID,
		"iat":   unixString(rec.IssuedAt),
		"exp":   unixString(rec.ExpiresAt),
		"ip":    rec.IP,
		"title": rec.Title,
	}
}

func decodeFields(deviceID string, fields map[string]string) (Record, error) {
	iat, err := strconv.ParseInt(fields["iat"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: corrupt iat for device %s", ErrStoreUnavailable, deviceID)
	}
	exp, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: corrupt exp for device %s", ErrStoreUnavailable, deviceID)
	}

	return Record{
		UserID:    fields["uid"],
		DeviceID:  deviceID,
		IssuedAt:  time.Unix(iat, 0).UTC(),
		ExpiresAt: time.Unix(exp, 0).UTC(),
		IP:        fields["ip"],
		Title:     fields["title"],
	}, nil
}

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
