package bus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gridbank.ai/internal/syncmsg"
)

const sessionPrefix = "gridbank:session:"

// releaseScript deletes the claim only while this process still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Sessions is the shared directory of which process hosts each user's
// root session.
type Sessions struct {
	rdb  redis.UniversalClient
	self string
	ttl  time.Duration
}

// NewSessions builds the directory for process self. A zero ttl keeps
// claims until released.
func NewSessions(rdb redis.UniversalClient, self string, ttl time.Duration) *Sessions {
	return &Sessions{rdb: rdb, self: self, ttl: ttl}
}

func SessionKey(agent uuid.UUID) string { return sessionPrefix + agent.String() }

// ClaimSession records this process as the owner. The latest claim wins.
func (s *Sessions) ClaimSession(ctx context.Context, agent uuid.UUID) error {
	return s.rdb.Set(ctx, SessionKey(agent), s.self, s.ttl).Err()
}

func (s *Sessions) ReleaseSession(ctx context.Context, agent uuid.UUID) error {
	return releaseScript.Run(ctx, s.rdb, []string{SessionKey(agent)}, s.self).Err()
}

// Refresh extends the claims this process still holds.
func (s *Sessions) Refresh(ctx context.Context, agents []uuid.UUID) error {
	if s.ttl <= 0 || len(agents) == 0 {
		return nil
	}
	for _, a := range agents {
		owner, err := s.SessionProcess(ctx, a)
		if err != nil {
			return err
		}
		if owner != s.self {
			continue
		}
		if err := s.rdb.Expire(ctx, SessionKey(a), s.ttl).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sessions) SessionProcess(ctx context.Context, agent uuid.UUID) (string, error) {
	proc, err := s.rdb.Get(ctx, SessionKey(agent)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return proc, err
}

var _ syncmsg.Directory = (*Sessions)(nil)
