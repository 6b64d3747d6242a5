package redistore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/store"
)

const challengeRecordVersion1 = 1

var errRecordExpired = errors.New("challenge record already expired")

// clearChallengeLua deletes the record only when the challenge ID embedded
// in the encoded value equals ARGV[1], as one atomic step. Field layout per
// encodeChallengeRecord: version byte, 8-byte expiry, 32-byte hash, then
// length-prefixed strings with the challenge ID second.
var clearChallengeLua = redis.NewScript(`
local val = redis.call('GET', KEYS[1])
if not val then
  return 0
end
if string.byte(val, 1) ~= 1 then
  return 0
end
local pos = 42
local plen = string.byte(val, pos) * 256 + string.byte(val, pos + 1)
pos = pos + 2 + plen
local clen = string.byte(val, pos) * 256 + string.byte(val, pos + 1)
if string.sub(val, pos + 2, pos + 1 + clen) ~= ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)

// ChallengeStore holds one encoded challenge record per principal under a
// TTL matching the record expiry. SET replaces, so supersession is a single
// write; GET re-checks the embedded expiry so a record that outlived its
// deadline behaves as absent even before Redis reclaims the key; Clear is a
// Lua compare-and-delete scoped to one challenge ID.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewChallengeStore returns a store writing under the given key prefix.
func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "ocs"
	}
	return &ChallengeStore{redis: redisClient, prefix: prefix}
}

func (s *ChallengeStore) key(principalID string) string {
	return s.prefix + ":" + principalID
}

// SetState replaces any existing record for the principal.
func (s *ChallengeStore) SetState(ctx context.Context, record store.Record) error {
	ttl := time.Until(time.Unix(record.ExpiresAt, 0))
	if ttl <= 0 {
		return errRecordExpired
	}

	encoded, err := encodeChallengeRecord(&record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.PrincipalID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// GetState returns nil for absent and for expired records.
func (s *ChallengeStore) GetState(ctx context.Context, principalID string) (*store.Record, error) {
	data, err := s.redis.Get(ctx, s.key(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	record, err := decodeChallengeRecord(data)
	if err != nil {
		// Unreadable record: drop it rather than wedge the principal.
		_, _ = s.redis.Del(ctx, s.key(principalID)).Result()
		return nil, nil
	}
	if record.Expired(time.Now()) {
		_, _ = s.redis.Del(ctx, s.key(principalID)).Result()
		return nil, nil
	}
	return record, nil
}

// ClearState removes the record if it still carries the given challenge ID
// and reports whether it did. The compare and the delete run as one script,
// so a record superseded since the caller read it stays untouched.
func (s *ChallengeStore) ClearState(ctx context.Context, principalID, challengeID string) (bool, error) {
	result, err := clearChallengeLua.Run(ctx, s.redis, []string{s.key(principalID)}, challengeID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return result > 0, nil
}

func encodeChallengeRecord(record *store.Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	for _, field := range []string{
		record.PrincipalID,
		record.ChallengeID,
		record.BoundIP,
		record.BoundUserAgent,
		record.ChannelTarget,
	} {
		if len(field) > 65535 {
			return nil, errors.New("challenge record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*store.Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &store.Record{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	for _, field := range []*string{
		&record.PrincipalID,
		&record.ChallengeID,
		&record.BoundIP,
		&record.BoundUserAgent,
		&record.ChannelTarget,
	} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return record, nil
}
