package sessions

import (
	"net/http"
	"strings"
	"time"
)

var _ Store = (*CookieStore)(nil)

// CookieStore reads slots from the inbound request cookies and writes them as
// Set-Cookie headers on the response. Writes must happen before the response
// status is written.
type CookieStore struct {
	r       *http.Request
	header  http.Header
	secure  bool
	pending map[string]*string // slots written this request, nil value = deleted
}

// NewCookieStore binds a store to one request/response pair. secure sets the
// Secure attribute and should be true in production.
func NewCookieStore(r *http.Request, w http.ResponseWriter, secure bool) *CookieStore {
	return &CookieStore{
		r:       r,
		header:  w.Header(),
		secure:  secure,
		pending: make(map[string]*string),
	}
}

func (c *CookieStore) Get(name string) (string, bool) {
	if v, ok := c.pending[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	cookie, err := c.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

func (c *CookieStore) Set(name, value string, maxAge time.Duration) {
	c.pending[name] = &value
	c.setCookie(name, value, int(maxAge/time.Second))
}

func (c *CookieStore) Delete(name string) {
	c.pending[name] = nil
	c.setCookie(name, "", -1)
}

func (c *CookieStore) setCookie(name, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}

	// Only the last write of a slot within a request reaches the client.
	existing := c.header.Values("Set-Cookie")
	kept := existing[:0:0]
	for _, line := range existing {
		if !strings.HasPrefix(line, name+"=") {
			kept = append(kept, line)
		}
	}
	c.header.Del("Set-Cookie")
	for _, line := range kept {
		c.header.Add("Set-Cookie", line)
	}
	c.header.Add("Set-Cookie", cookie.String())
}
