package sessions_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/stratgate/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type redisFixture struct {
	mr     *miniredis.Miniredis
	client *redis.Client
	ids    *sessions.MemoryStore
	codec  *sessions.Codec
	nextID int
}

func setupRedisFixture(t *testing.T) *redisFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &redisFixture{
		mr:     mr,
		client: client,
		ids:    sessions.NewMemoryStore(),
		codec:  newCodec(),
	}
}

// request binds a fresh store to the shared id store, as each HTTP request would.
func (f *redisFixture) request() *sessions.RedisStore {
	return sessions.NewRedisStore(context.Background(), f.client, f.ids, sessions.DefaultSlotPrefix,
		sessions.WithIDGenerator(func() string {
			f.nextID++
			return fmt.Sprintf("id-%d", f.nextID)
		}),
	)
}

func (f *redisFixture) keys() []string {
	keys := f.mr.Keys()
	sort.Strings(keys)
	return keys
}

func sessionKeys(id string) []string {
	keys := make([]string, 0, 5)
	for _, name := range sessions.NewSlotNames(sessions.DefaultSlotPrefix).All() {
		keys = append(keys, sessions.DefaultRedisKeyPrefix+id+":"+name)
	}
	sort.Strings(keys)
	return keys
}

func TestRedisStore_RoundTrip(t *testing.T) {
	f := setupRedisFixture(t)

	f.codec.Write(f.request(), testSnapshot())

	require.Equal(t, testSnapshot(), f.codec.Read(f.request()))
	require.Equal(t, sessionKeys("id-1"), f.keys())

	id, ok := f.ids.Get("sg_sid")
	require.True(t, ok)
	require.Equal(t, "id-1", id)
	require.Equal(t, 1, f.ids.Len(), "only the id reaches the browser")
	maxAge, _ := f.ids.MaxAge("sg_sid")
	require.Equal(t, 30*24*time.Hour, maxAge)
}

func TestRedisStore_SlotTTLs(t *testing.T) {
	f := setupRedisFixture(t)

	f.codec.Write(f.request(), testSnapshot())

	require.Equal(t, time.Hour, f.mr.TTL(sessions.DefaultRedisKeyPrefix+"id-1:sg_access_token"))
	require.Equal(t, 30*24*time.Hour, f.mr.TTL(sessions.DefaultRedisKeyPrefix+"id-1:sg_refresh_token"))
}

func TestRedisStore_RewriteRotatesID(t *testing.T) {
	f := setupRedisFixture(t)
	f.codec.Write(f.request(), testSnapshot())

	refreshed := testSnapshot()
	refreshed.AccessToken = "access-2"
	refreshed.RefreshToken = "refresh-2"
	f.codec.Write(f.request(), refreshed)

	require.Equal(t, sessionKeys("id-2"), f.keys())
	require.Equal(t, refreshed, f.codec.Read(f.request()))
}

func TestRedisStore_PlantedIDIsNeverAuthenticated(t *testing.T) {
	f := setupRedisFixture(t)
	f.ids.Set("sg_sid", "attacker-chosen", time.Hour)

	store := f.request()
	require.Nil(t, f.codec.Read(store))
	f.codec.Write(store, testSnapshot())

	id, _ := f.ids.Get("sg_sid")
	require.NotEqual(t, "attacker-chosen", id)
	require.Equal(t, sessionKeys(id), f.keys())
}

func TestRedisStore_Clear(t *testing.T) {
	f := setupRedisFixture(t)
	f.codec.Write(f.request(), testSnapshot())

	store := f.request()
	f.codec.Clear(store)

	require.Empty(t, f.keys())
	_, ok := f.ids.Get("sg_sid")
	require.False(t, ok)
	require.Nil(t, f.codec.Read(f.request()))
}

func TestRedisStore_WriteAfterClearInOneRequest(t *testing.T) {
	f := setupRedisFixture(t)
	store := f.request()

	f.codec.Clear(store)
	f.codec.Write(store, testSnapshot())

	_, ok := f.ids.Get("sg_sid")
	require.True(t, ok)
	require.Equal(t, testSnapshot(), f.codec.Read(f.request()))
}

func TestRedisStore_UnavailableReadsAsNoSession(t *testing.T) {
	f := setupRedisFixture(t)
	f.codec.Write(f.request(), testSnapshot())
	f.mr.Close()

	require.Nil(t, f.codec.Read(f.request()))
}
