package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRedisKeyPrefix = "stratgate:session:"

	sessionIDSlot   = "sid"
	sessionIDMaxAge = longLivedMaxAge
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps slot values server side. The browser holds only an opaque
// session id, kept in the ids store under <prefix>sid.
//
// The id is rotated on the first write of every request, and the previous
// id's keys are removed as each slot is rewritten, so an id planted before
// login never becomes an authenticated one. Redis failures read as absent.
type RedisStore struct {
	ctx       context.Context
	client    redis.Cmdable
	ids       Store
	idName    string
	keyPrefix string
	newID     func() string

	inboundID string
	loaded    bool
	writeID   string
	idWritten bool
}

// RedisOption modifies a RedisStore.
type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// WithIDGenerator replaces uuid.NewString (primarily for testing)
func WithIDGenerator(newID func() string) RedisOption {
	return func(s *RedisStore) {
		s.newID = newID
	}
}

// NewRedisStore binds a store to one request. ctx bounds every Redis call
// and slotPrefix names the id slot alongside the codec's own slots.
func NewRedisStore(ctx context.Context, client redis.Cmdable, ids Store, slotPrefix string, options ...RedisOption) *RedisStore {
	s := &RedisStore{
		ctx:       ctx,
		client:    client,
		ids:       ids,
		idName:    SessionIDName(slotPrefix),
		keyPrefix: DefaultRedisKeyPrefix,
		newID:     uuid.NewString,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// SessionIDName is the slot a RedisStore keeps its session id in.
func SessionIDName(slotPrefix string) string {
	return slotPrefix + sessionIDSlot
}

// IDName is the slot holding the session id.
func (s *RedisStore) IDName() string {
	return s.idName
}

func (s *RedisStore) Get(name string) (string, bool) {
	id := s.currentID()
	if id == "" {
		return "", false
	}
	value, err := s.client.Get(s.ctx, s.key(id, name)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("slot", name).Msg("session store read failed")
		}
		return "", false
	}
	return value, true
}

func (s *RedisStore) Set(name, value string, maxAge time.Duration) {
	old := s.loadInboundID()
	if s.writeID == "" {
		s.writeID = s.newID()
	}
	if !s.idWritten {
		s.ids.Set(s.idName, s.writeID, sessionIDMaxAge)
		s.idWritten = true
	}

	_, err := s.client.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(s.ctx, s.key(s.writeID, name), value, maxAge)
		if old != "" && old != s.writeID {
			pipe.Del(s.ctx, s.key(old, name))
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("slot", name).Msg("session store write failed")
	}
}

func (s *RedisStore) Delete(name string) {
	var keys []string
	for _, id := range []string{s.loadInboundID(), s.writeID} {
		if id != "" {
			keys = append(keys, s.key(id, name))
		}
	}
	s.ids.Delete(s.idName)
	s.idWritten = false
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(s.ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Str("slot", name).Msg("session store delete failed")
	}
}

func (s *RedisStore) currentID() string {
	if s.writeID != "" {
		return s.writeID
	}
	return s.loadInboundID()
}

func (s *RedisStore) loadInboundID() string {
	if !s.loaded {
		s.inboundID, _ = s.ids.Get(s.idName)
		s.loaded = true
	}
	return s.inboundID
}

func (s *RedisStore) key(id, name string) string {
	return s.keyPrefix + id + ":" + name
}
