package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/stratgate/auth"
	gwerrors "github.com/jrsteele09/stratgate/internal/errors"
	"github.com/jrsteele09/stratgate/sessions"
	"github.com/rs/zerolog/log"
)

const (
	headerAuthorization = "Authorization"
	headerSubjectID     = "X-Chat-User-Id"
	headerServiceToken  = "X-Admin-Token"

	relayBufferSize = 32 * 1024
)

// Headers that describe a single connection and are never relayed.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Gateway forwards requests to the API origin with the credential chosen by
// its resolver and relays the response, streamed bodies included.
type Gateway struct {
	origin   string
	resolver auth.CredentialResolver
	codec    *sessions.Codec
	stores   StoreFunc
	client   *http.Client
	metrics  *Metrics
	private  []string
}

// GatewayOption modifies a Gateway.
type GatewayOption func(*Gateway)

// WithOriginClient replaces the outbound client. Redirects are never followed
// regardless of the client's own policy.
func WithOriginClient(client *http.Client) GatewayOption {
	return func(g *Gateway) {
		c := *client
		c.CheckRedirect = noRedirects
		g.client = &c
	}
}

func WithGatewayMetrics(metrics *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithPrivateCookies names cookies, besides the codec slots, that never reach the origin.
func WithPrivateCookies(names ...string) GatewayOption {
	return func(g *Gateway) {
		g.private = append(g.private, names...)
	}
}

// NewOriginClient bounds connection setup and response headers by timeout.
// The body is left unbounded so event streams are never cut off.
func NewOriginClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport, CheckRedirect: noRedirects}
}

func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func NewGateway(origin string, resolver auth.CredentialResolver, codec *sessions.Codec, stores StoreFunc, options ...GatewayOption) (*Gateway, error) {
	if resolver == nil {
		return nil, errors.New("[NewGateway] resolver is required")
	}
	if codec == nil {
		return nil, errors.New("[NewGateway] codec is required")
	}
	if stores == nil {
		return nil, errors.New("[NewGateway] store func is required")
	}

	g := &Gateway{
		origin:   strings.TrimRight(origin, "/"),
		resolver: resolver,
		codec:    codec,
		stores:   stores,
		client:   NewOriginClient(30 * time.Second),
	}
	for _, opt := range options {
		opt(g)
	}
	if g.origin == "" {
		log.Warn().Msg("API origin is not configured, proxied requests will fail")
	}
	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	store := g.stores(w, r)

	state, err := g.resolver.Resolve(r.Context(), store)
	if err != nil {
		if errors.Is(err, gwerrors.ErrMissingConfig) {
			log.Err(err).Msg("[Gateway] credential unavailable")
			writeError(w, http.StatusInternalServerError, errMisconfigured)
			return
		}
		log.Err(err).Str("request_id", r.Header.Get(headerRequestID)).Msg("[Gateway] session resolution failed")
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	// Persist before any status is written. A refreshed session is kept even
	// when the forward below fails, since the old refresh token has been spent.
	g.persist(store, state)

	if !state.Authenticated() {
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}
	if g.origin == "" {
		writeError(w, http.StatusInternalServerError, errMisconfigured)
		return
	}

	outbound, err := g.outboundRequest(r, state)
	if err != nil {
		log.Err(err).Msg("[Gateway] build outbound request")
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}

	resp, err := g.client.Do(outbound)
	if err != nil {
		if r.Context().Err() != nil {
			// client went away, nobody to answer
			return
		}
		if g.metrics != nil {
			g.metrics.ObserveUpstreamFailure()
		}
		log.Err(err).Str("path", r.URL.Path).Msg("[Gateway] origin unreachable")
		writeError(w, http.StatusBadGateway, errUpstream)
		return
	}
	defer resp.Body.Close()

	if g.metrics != nil {
		g.metrics.ObserveProxied(state.Mode, resp.StatusCode)
	}
	g.relay(w, resp)
}

func (g *Gateway) persist(store sessions.Store, state auth.ProxyAuthState) {
	switch {
	case state.RefreshedSnapshot != nil:
		g.codec.Write(store, state.RefreshedSnapshot)
	case state.MustClearSession:
		g.codec.Clear(store)
	}
}

func (g *Gateway) outboundRequest(r *http.Request, state auth.ProxyAuthState) (*http.Request, error) {
	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, gwerrors.Wrapf(err, "[Gateway outboundRequest] read body")
		}
		body = bytes.NewReader(raw)
	}

	outbound, err := http.NewRequestWithContext(r.Context(), r.Method, g.origin+r.URL.RequestURI(), body)
	if err != nil {
		return nil, gwerrors.Wrapf(err, "[Gateway outboundRequest] new request")
	}

	copyHeaders(outbound.Header, r.Header)
	outbound.Header.Del("Host")
	// The transport negotiates compression itself and decodes the body
	outbound.Header.Del("Accept-Encoding")
	g.dropSessionCookies(outbound, r)

	switch state.Mode {
	case auth.ModeService:
		outbound.Header.Set(headerServiceToken, state.Credential)
		outbound.Header.Del(headerAuthorization)
		outbound.Header.Del(headerSubjectID)
	default:
		outbound.Header.Set(headerAuthorization, "Bearer "+state.Credential)
		outbound.Header.Del(headerSubjectID)
		if state.SubjectID != "" {
			outbound.Header.Set(headerSubjectID, state.SubjectID)
		}
		outbound.Header.Del(headerServiceToken)
	}
	return outbound, nil
}

// sessionCookieNames are the cookies only the gateway may read or write.
func (g *Gateway) sessionCookieNames() map[string]struct{} {
	names := make(map[string]struct{})
	for _, name := range append(g.codec.Names().All(), g.private...) {
		names[name] = struct{}{}
	}
	return names
}

// dropSessionCookies keeps the gateway's own session slots away from the origin.
func (g *Gateway) dropSessionCookies(outbound, r *http.Request) {
	outbound.Header.Del("Cookie")
	slots := g.sessionCookieNames()
	var kept []string
	for _, c := range r.Cookies() {
		if _, ok := slots[c.Name]; !ok {
			kept = append(kept, c.String())
		}
	}
	if len(kept) > 0 {
		outbound.Header.Set("Cookie", strings.Join(kept, "; "))
	}
}

func (g *Gateway) relay(w http.ResponseWriter, resp *http.Response) {
	if w.Header().Get(headerRequestID) != "" {
		resp.Header.Del(headerRequestID)
	}
	g.dropOriginSessionCookies(resp.Header)
	copyHeaders(w.Header(), resp.Header)
	w.Header().Del("Content-Encoding")
	w.Header().Del("Content-Length")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.StatusCode)

	if err := flushCopy(w, resp.Body); err != nil {
		log.Debug().Err(err).Msg("[Gateway] relay interrupted")
	}
}

// dropOriginSessionCookies removes origin Set-Cookie lines that would
// overwrite a session slot.
func (g *Gateway) dropOriginSessionCookies(h http.Header) {
	lines := h.Values("Set-Cookie")
	if len(lines) == 0 {
		return
	}
	slots := g.sessionCookieNames()
	h.Del("Set-Cookie")
	for _, line := range lines {
		name, _, _ := strings.Cut(line, "=")
		if _, ok := slots[strings.TrimSpace(name)]; ok {
			log.Warn().Str("cookie", strings.TrimSpace(name)).Msg("[Gateway] origin tried to set a session cookie")
			continue
		}
		h.Add("Set-Cookie", line)
	}
}

// flushCopy writes each chunk as soon as it is read so streamed bodies stay live.
func flushCopy(w http.ResponseWriter, body io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, relayBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func copyHeaders(dst, src http.Header) {
	connectionScoped := connectionHeaders(src)
	for k, vv := range src {
		if isHopByHop(k) || connectionScoped[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// connectionHeaders lists extra headers named in Connection, which are hop-by-hop too.
func connectionHeaders(h http.Header) map[string]bool {
	named := make(map[string]bool)
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				named[http.CanonicalHeaderKey(name)] = true
			}
		}
	}
	return named
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
