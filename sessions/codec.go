package sessions

import (
	"strconv"
	"time"
)

const (
	// DefaultSlotPrefix is prepended to every slot name.
	DefaultSlotPrefix = "sg_"

	longLivedMaxAge = 30 * 24 * time.Hour
	minAccessMaxAge = 60 * time.Second
)

// Codec maps a Snapshot onto the five slots of a Store. It performs no I/O of its own.
type Codec struct {
	names   SlotNames
	nowTime func() time.Time
}

// CodecOption modifies a Codec.
type CodecOption func(*Codec)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowTime = nowFunc
	}
}

func NewCodec(prefix string, options ...CodecOption) *Codec {
	c := &Codec{
		names:   NewSlotNames(prefix),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Codec) Names() SlotNames {
	return c.names
}

// Read returns the persisted snapshot, or nil if any slot is missing, the
// expiry is not an integer, or either token is empty.
func (c *Codec) Read(store Store) *Snapshot {
	access, ok := store.Get(c.names.AccessToken)
	if !ok {
		return nil
	}
	refresh, ok := store.Get(c.names.RefreshToken)
	if !ok {
		return nil
	}
	expiresRaw, ok := store.Get(c.names.ExpiresAt)
	if !ok {
		return nil
	}
	userID, ok := store.Get(c.names.UserID)
	if !ok {
		return nil
	}
	email, ok := store.Get(c.names.Email)
	if !ok {
		return nil
	}

	expiresAt, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return nil
	}

	s := &Snapshot{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		UserID:       userID,
		Email:        email,
	}
	if !s.Valid() {
		return nil
	}
	return s
}

// Write persists all five slots. The access token slot lives until the token
// expires (at least 60s); the rest live 30 days. An invalid snapshot clears
// the store instead, so a session is never half written.
func (c *Codec) Write(store Store, s *Snapshot) {
	if !s.Valid() {
		c.Clear(store)
		return
	}

	accessMaxAge := time.Duration(s.ExpiresAt-c.nowTime().Unix()) * time.Second
	if accessMaxAge < minAccessMaxAge {
		accessMaxAge = minAccessMaxAge
	}

	store.Set(c.names.AccessToken, s.AccessToken, accessMaxAge)
	store.Set(c.names.RefreshToken, s.RefreshToken, longLivedMaxAge)
	store.Set(c.names.ExpiresAt, strconv.FormatInt(s.ExpiresAt, 10), longLivedMaxAge)
	store.Set(c.names.UserID, s.UserID, longLivedMaxAge)
	store.Set(c.names.Email, s.Email, longLivedMaxAge)
}

// Clear removes every slot. It is idempotent.
func (c *Codec) Clear(store Store) {
	for _, name := range c.names.All() {
		store.Delete(name)
	}
}
