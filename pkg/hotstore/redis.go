package hotstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/dmrproject/dmr/pkg/dmrerr"
	"github.com/dmrproject/dmr/pkg/principal"
)

// RedisStore is the Redis-backed hot turn store, mirroring the
// reference implementation's key layout: one hash per turn, one list
// for the slot→turn_id map, and one set for tombstones, all namespaced
// by Prefix and the principal key.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an already-configured redis.Client. prefix
// namespaces all keys this store touches (default "dmr" if empty).
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "dmr"
	}
	return &RedisStore{Client: client, Prefix: prefix}
}

func (s *RedisStore) turnKey(p principal.Principal, turnID string) string {
	return fmt.Sprintf("%s:hot:%s:turn:%s", s.Prefix, p.Key(), turnID)
}

func (s *RedisStore) idxmapKey(p principal.Principal) string {
	return fmt.Sprintf("%s:hot:%s:idxmap", s.Prefix, p.Key())
}

func (s *RedisStore) tombKey(p principal.Principal) string {
	return fmt.Sprintf("%s:hot:%s:tomb", s.Prefix, p.Key())
}

// PutTurn pipelines the hash write and the idxmap append as a single
// transaction, so a crash cannot leave the two out of sync, per
// spec.md §4.3.
func (s *RedisStore) PutTurn(ctx context.Context, p principal.Principal, turnID, text, signature string, ts int64) error {
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.turnKey(p, turnID), map[string]interface{}{
			"text":      text,
			"signature": signature,
			"ts":        strconv.FormatInt(ts, 10),
		})
		pipe.RPush(ctx, s.idxmapKey(p), turnID)
		return nil
	})
	if err != nil {
		return dmrerr.Wrap("hotstore.put_turn", err)
	}
	return nil
}

func (s *RedisStore) GetTurn(ctx context.Context, p principal.Principal, turnID string) (TurnRecord, bool, error) {
	if tomb, err := s.Tombstoned(ctx, p, turnID); err != nil {
		return TurnRecord{}, false, dmrerr.Wrap("hotstore.get_turn", err)
	} else if tomb {
		return TurnRecord{}, false, nil
	}

	vals, err := s.Client.HGetAll(ctx, s.turnKey(p, turnID)).Result()
	if err != nil {
		return TurnRecord{}, false, dmrerr.Wrap("hotstore.get_turn", err)
	}
	if len(vals) == 0 {
		return TurnRecord{}, false, nil
	}
	ts, _ := strconv.ParseInt(vals["ts"], 10, 64)
	return TurnRecord{
		Text:      vals["text"],
		Signature: vals["signature"],
		TS:        ts,
	}, true, nil
}

// IdxmapMGet pipelines one LINDEX per requested slot, preserving input
// order, per spec.md §4.3.
func (s *RedisStore) IdxmapMGet(ctx context.Context, p principal.Principal, slots []int) ([]string, error) {
	out := make([]string, len(slots))
	if len(slots) == 0 {
		return out, nil
	}

	key := s.idxmapKey(p)
	cmds := make([]*redis.StringCmd, len(slots))
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, slot := range slots {
			cmds[i] = pipe.LIndex(ctx, key, int64(slot))
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, dmrerr.Wrap("hotstore.idxmap_mget", err)
	}

	for i, cmd := range cmds {
		v, err := cmd.Result()
		if err != nil {
			continue // redis.Nil (or a per-command miss): leave "" at this position
		}
		out[i] = v
	}
	return out, nil
}

// Tombstone pipelines the SADD and turn-key DEL, per spec.md §4.3, and
// always reports true.
func (s *RedisStore) Tombstone(ctx context.Context, p principal.Principal, turnID string) (bool, error) {
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.tombKey(p), turnID)
		pipe.Del(ctx, s.turnKey(p, turnID))
		return nil
	})
	if err != nil {
		return false, dmrerr.Wrap("hotstore.tombstone", err)
	}
	return true, nil
}

func (s *RedisStore) Tombstoned(ctx context.Context, p principal.Principal, turnID string) (bool, error) {
	ok, err := s.Client.SIsMember(ctx, s.tombKey(p), turnID).Result()
	if err != nil {
		return false, dmrerr.Wrap("hotstore.tombstoned", err)
	}
	return ok, nil
}
