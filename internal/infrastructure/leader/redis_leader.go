package leader

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const leaderKey = "auction_engine:leader"

var (
	extendScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("PEXPIRE", KEYS[1], ARGV[2])
        else
            return 0
        end
    `)
	releaseScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `)
)

type RedisLeaderElection struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger

	mu            sync.Mutex
	stopHeartbeat context.CancelFunc
}

var _ domain.LeaderElection = (*RedisLeaderElection)(nil)

func NewRedisLeaderElection(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// BecomeLeader acquires the lease, or renews it when instanceID already holds it.
func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	acquired, err := r.client.SetNX(ctx, leaderKey, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}
	if !acquired {
		acquired, err = r.extend(ctx, instanceID)
		if err != nil {
			return false, err
		}
	}

	if acquired {
		r.startHeartbeat(instanceID)
	}
	return acquired, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	if r.stopHeartbeat != nil {
		r.stopHeartbeat()
		r.stopHeartbeat = nil
	}
	r.mu.Unlock()

	return releaseScript.Run(ctx, r.client, []string{leaderKey}, instanceID).Err()
}

func (r *RedisLeaderElection) extend(ctx context.Context, instanceID string) (bool, error) {
	n, err := extendScript.Run(ctx, r.client, []string{leaderKey},
		instanceID, strconv.FormatInt(r.ttl.Milliseconds(), 10)).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisLeaderElection) startHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopHeartbeat != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.stopHeartbeat = cancel
	go r.maintainLeadership(ctx, instanceID)
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		extendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ok, err := r.extend(extendCtx, instanceID)
		cancel()

		if err != nil || !ok {
			if ctx.Err() != nil {
				return
			}
			// Lost leadership, stop heartbeat
			r.log.Warn("Leadership lost", "instance_id", instanceID, "error", err)
			r.mu.Lock()
			if r.stopHeartbeat != nil {
				r.stopHeartbeat()
				r.stopHeartbeat = nil
			}
			r.mu.Unlock()
			return
		}
	}
}

// CurrentLeader returns the instance holding the scheduler lease, or "" when nobody does.
func CurrentLeader(ctx context.Context, client *redis.Client) (string, error) {
	holder, err := client.Get(ctx, leaderKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}
