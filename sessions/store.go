package sessions

import "time"

// Store is an opaque key/value slot store holding a persisted session.
// Cookies are the production implementation; any store satisfying this
// contract works with the Codec unchanged.
type Store interface {
	// Get returns the slot value and whether the slot is present at all.
	Get(name string) (string, bool)
	// Set writes a slot that expires after maxAge.
	Set(name, value string, maxAge time.Duration)
	// Delete removes a slot. Deleting an absent slot is not an error.
	Delete(name string)
}

// SlotNames are the five persisted slot names of a session.
type SlotNames struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    string
	UserID       string
	Email        string
}

func NewSlotNames(prefix string) SlotNames {
	return SlotNames{
		AccessToken:  prefix + "access_token",
		RefreshToken: prefix + "refresh_token",
		ExpiresAt:    prefix + "expires_at",
		UserID:       prefix + "user_id",
		Email:        prefix + "user_email",
	}
}

func (n SlotNames) All() []string {
	return []string{n.AccessToken, n.RefreshToken, n.ExpiresAt, n.UserID, n.Email}
}
