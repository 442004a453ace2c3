package sessions_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/stratgate/sessions"
	"github.com/stretchr/testify/require"
)

func TestSealedStore_RoundTrip(t *testing.T) {
	inner := sessions.NewMemoryStore()
	sealed, err := sessions.NewSealedStore(inner, "cookie-secret")
	require.NoError(t, err)
	codec := newCodec()

	codec.Write(sealed, testSnapshot())

	raw, ok := inner.Get(codec.Names().AccessToken)
	require.True(t, ok)
	require.NotEqual(t, "access-1", raw)
	require.Equal(t, testSnapshot(), codec.Read(sealed))
}

func TestSealedStore_TamperedValueReadsAsAbsent(t *testing.T) {
	inner := sessions.NewMemoryStore()
	sealed, err := sessions.NewSealedStore(inner, "cookie-secret")
	require.NoError(t, err)
	codec := newCodec()
	codec.Write(sealed, testSnapshot())

	inner.Set(codec.Names().RefreshToken, "not-a-sealed-value", time.Hour)

	require.Nil(t, codec.Read(sealed))
}

func TestSealedStore_SwappedSlotsRejected(t *testing.T) {
	inner := sessions.NewMemoryStore()
	sealed, err := sessions.NewSealedStore(inner, "cookie-secret")
	require.NoError(t, err)
	names := newCodec().Names()

	sealed.Set(names.AccessToken, "a", time.Hour)
	raw, _ := inner.Get(names.AccessToken)
	inner.Set(names.RefreshToken, raw, time.Hour)

	_, ok := sealed.Get(names.RefreshToken)
	require.False(t, ok)
}

func TestSealedStore_WrongSecret(t *testing.T) {
	inner := sessions.NewMemoryStore()
	writer, err := sessions.NewSealedStore(inner, "secret-a")
	require.NoError(t, err)
	reader, err := sessions.NewSealedStore(inner, "secret-b")
	require.NoError(t, err)

	writer.Set("slot", "value", time.Hour)

	_, ok := reader.Get("slot")
	require.False(t, ok)
}

func TestSealedStore_RequiresSecret(t *testing.T) {
	_, err := sessions.NewSealedStore(sessions.NewMemoryStore(), "")
	require.Error(t, err)
}
