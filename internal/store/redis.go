package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peercode/match-service/internal/model"
)

const (
	// Redis key patterns for the pending pool.
	keyRequestPrefix = "match:request:" // + <user_id> -> Hash
	keyTopicPrefix   = "match:topic:"   // + <topic>   -> Sorted set, score = submitted_at (ms)
	keyConnPrefix    = "match:conn:"    // + <connection_id> -> user_id

	// requestTTL is a safety net so requests from crashed controllers
	// cannot leak. Well above the global timeout; the controller always
	// removes entries first in normal operation.
	requestTTL = 2 * time.Minute
)

// Redis is the production Store. One hash per active request, one sorted
// set per topic ordered by submission time, and a connection index for
// disconnect handling. Add, Remove, and ClaimPair run as Lua scripts so
// each is a single atomic round trip.
type Redis struct {
	rdb          *redis.Client
	addScript    *redis.Script
	removeScript *redis.Script
	claimScript  *redis.Script
}

// NewRedis creates a Redis-backed store on an existing client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{
		rdb:          rdb,
		addScript:    redis.NewScript(addRequestLua),
		removeScript: redis.NewScript(removeRequestLua),
		claimScript:  redis.NewScript(claimPairLua),
	}
}

func (s *Redis) Add(ctx context.Context, req *model.MatchRequest) error {
	keys := []string{
		keyRequestPrefix + req.UserID,
		keyTopicPrefix + req.Topic,
		keyConnPrefix + req.ConnectionID,
	}
	argv := []interface{}{
		req.UserID,
		req.Topic,
		int(req.Difficulty),
		req.SubmittedAt,
		req.ConnectionID,
		int(requestTTL.Seconds()),
	}

	added, err := s.addScript.Run(ctx, s.rdb, keys, argv...).Int()
	if err != nil {
		return fmt.Errorf("store: add request %s: %w", req.UserID, err)
	}
	if added == 0 {
		return ErrDuplicateRequest
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, userID string) (*model.MatchRequest, error) {
	fields, err := s.rdb.HGetAll(ctx, keyRequestPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get request %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return requestFromFields(fields), nil
}

func (s *Redis) Remove(ctx context.Context, userID string) (*model.MatchRequest, error) {
	raw, err := s.removeScript.Run(ctx, s.rdb, []string{keyRequestPrefix + userID}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: remove request %s: %w", userID, err)
	}
	return requestFromReply(raw), nil
}

func (s *Redis) Candidates(ctx context.Context, topic, excludeUserID string) ([]*model.MatchRequest, error) {
	userIDs, err := s.rdb.ZRange(ctx, keyTopicPrefix+topic, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: candidates for %s: %w", topic, err)
	}

	var out []*model.MatchRequest
	for _, uid := range userIDs {
		if uid == excludeUserID {
			continue
		}
		req, err := s.Get(ctx, uid)
		if err != nil {
			return nil, err
		}
		if req == nil {
			// Index entry outlived its request hash; drop it so later
			// scans stay clean.
			s.rdb.ZRem(ctx, keyTopicPrefix+topic, uid)
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *Redis) ClaimPair(ctx context.Context, userA, userB string) (*model.MatchRequest, *model.MatchRequest, error) {
	keys := []string{keyRequestPrefix + userA, keyRequestPrefix + userB}
	raw, err := s.claimScript.Run(ctx, s.rdb, keys).Result()
	if err == redis.Nil {
		return nil, nil, ErrRaceLost
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: claim pair %s/%s: %w", userA, userB, err)
	}

	pair, ok := raw.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, nil, fmt.Errorf("store: claim pair %s/%s: unexpected reply %T", userA, userB, raw)
	}
	return requestFromReply(pair[0]), requestFromReply(pair[1]), nil
}

func (s *Redis) UserByConnection(ctx context.Context, connectionID string) (string, error) {
	userID, err := s.rdb.Get(ctx, keyConnPrefix+connectionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: resolve connection %s: %w", connectionID, err)
	}
	return userID, nil
}

func (s *Redis) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyRequestPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("store: pending count: %w", err)
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// requestFromFields rebuilds a request from its Redis hash.
func requestFromFields(fields map[string]string) *model.MatchRequest {
	difficulty, _ := strconv.Atoi(fields["difficulty"])
	submittedAt, _ := strconv.ParseInt(fields["submitted_at"], 10, 64)
	return &model.MatchRequest{
		UserID:       fields["user_id"],
		Topic:        fields["topic"],
		Difficulty:   model.Difficulty(difficulty),
		SubmittedAt:  submittedAt,
		ConnectionID: fields["connection_id"],
	}
}

// requestFromReply rebuilds a request from a Lua HGETALL reply (a flat
// field/value array).
func requestFromReply(raw interface{}) *model.MatchRequest {
	flat, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	if len(fields) == 0 {
		return nil
	}
	return requestFromFields(fields)
}

// addRequestLua inserts a request only if the user has no active one.
// KEYS = {request, topic index, connection index}. Returns 1 on insert,
// 0 on duplicate.
const addRequestLua = `
if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
end

redis.call('HSET', KEYS[1],
    'user_id', ARGV[1],
    'topic', ARGV[2],
    'difficulty', ARGV[3],
    'submitted_at', ARGV[4],
    'connection_id', ARGV[5])
redis.call('EXPIRE', KEYS[1], ARGV[6])

redis.call('ZADD', KEYS[2], tonumber(ARGV[4]), ARGV[1])

if ARGV[5] ~= '' then
    redis.call('SET', KEYS[3], ARGV[1], 'EX', ARGV[6])
end

return 1
`

// removeRequestLua deletes a request and its index entries, returning the
// removed hash, or nil when the request no longer exists.
const removeRequestLua = `
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then
    return nil
end

local topic = redis.call('HGET', KEYS[1], 'topic')
local user_id = redis.call('HGET', KEYS[1], 'user_id')
local conn = redis.call('HGET', KEYS[1], 'connection_id')

redis.call('DEL', KEYS[1])
redis.call('ZREM', 'match:topic:' .. topic, user_id)
if conn and conn ~= '' then
    redis.call('DEL', 'match:conn:' .. conn)
end

return fields
`

// claimPairLua removes both requests or neither. Returns the two removed
// hashes, or nil when either request was already claimed. Success here is
// what makes pairing exclusive: two concurrent attempts on the same
// candidate cannot both see this script succeed.
const claimPairLua = `
if redis.call('EXISTS', KEYS[1]) == 0 or redis.call('EXISTS', KEYS[2]) == 0 then
    return nil
end

local function take(key)
    local fields = redis.call('HGETALL', key)
    local topic = redis.call('HGET', key, 'topic')
    local user_id = redis.call('HGET', key, 'user_id')
    local conn = redis.call('HGET', key, 'connection_id')
    redis.call('DEL', key)
    redis.call('ZREM', 'match:topic:' .. topic, user_id)
    if conn and conn ~= '' then
        redis.call('DEL', 'match:conn:' .. conn)
    end
    return fields
end

return {take(KEYS[1]), take(KEYS[2])}
`
