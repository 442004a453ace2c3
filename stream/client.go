package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultGeneratePath      = "/api/generate"
	DefaultFirstFrameTimeout = 90 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultPollInterval      = time.Second

	readBufferSize = 4096
)

// ErrStreamEnded means the body closed without a terminal frame.
var ErrStreamEnded = errors.New("stream ended before completion")

// GenerationError is a terminal error frame sent by the server.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Message
}

// StatusError is a non-2xx response to the generate request.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generate request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("generate request failed with status %d: %s", e.StatusCode, e.Message)
}

// Callbacks receive stream progress. Exactly one of OnDone or OnError is
// called per Generate call. Any of them may be nil.
type Callbacks struct {
	OnToken func(fragment, output string)
	OnDone  func(Result)
	OnError func(error)
}

// Client calls a token-streaming generation endpoint.
type Client struct {
	baseURL           string
	path              string
	httpClient        *http.Client
	header            http.Header
	firstFrameTimeout time.Duration
	idleTimeout       time.Duration
	pollInterval      time.Duration
	nowTime           func() time.Time
}

// ClientOption modifies a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the transport client. Its Timeout must be zero or the
// whole stream will be bounded by it.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithPath(path string) ClientOption {
	return func(c *Client) {
		c.path = path
	}
}

func WithTimeouts(firstFrame, idle time.Duration) ClientOption {
	return func(c *Client) {
		if firstFrame > 0 {
			c.firstFrameTimeout = firstFrame
		}
		if idle > 0 {
			c.idleTimeout = idle
		}
	}
}

func WithPollInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		path:              DefaultGeneratePath,
		httpClient:        &http.Client{},
		header:            make(http.Header),
		firstFrameTimeout: DefaultFirstFrameTimeout,
		idleTimeout:       DefaultIdleTimeout,
		pollInterval:      DefaultPollInterval,
		nowTime:           time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate streams a generation for prompt. It returns when a terminal frame
// arrives, the stream stalls, the body ends, or ctx is cancelled. Cancelling
// ctx is the caller's cancellation signal.
func (c *Client) Generate(ctx context.Context, prompt string, callbacks Callbacks) (*Result, error) {
	d := &delivery{callbacks: callbacks}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	watchdog := NewWatchdog(c.nowTime(), c.firstFrameTimeout, c.idleTimeout, cancel)
	go watchdog.Run(ctx, c.pollInterval, c.nowTime)

	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return d.fail(fmt.Errorf("[stream Generate] marshal: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return d.fail(fmt.Errorf("[stream Generate] request: %w", err))
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return d.fail(classify(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return d.fail(statusError(resp))
	}

	decoder := NewDecoder()
	var output strings.Builder
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			seen := decoder.Seen()
			frames := decoder.Feed(buf[:n])
			if decoder.Seen() > seen {
				watchdog.Observe(c.nowTime())
			}
			if result, done, err := d.dispatch(frames, &output); done {
				c.logSkipped(decoder)
				return result, err
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			if result, done, err := d.dispatch(decoder.Flush(), &output); done {
				c.logSkipped(decoder)
				return result, err
			}
			return d.fail(ErrStreamEnded)
		}
		return d.fail(classify(ctx, readErr))
	}
}

func (c *Client) logSkipped(decoder *Decoder) {
	if decoder.Skipped() > 0 {
		log.Warn().Int("skipped", decoder.Skipped()).Msg("stream: malformed frames skipped")
	}
}

// classify prefers the cancellation cause, so stalls surface as their own errors.
func classify(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return fmt.Errorf("[stream Generate] %w", err)
}

func statusError(resp *http.Response) error {
	e := &StatusError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		e.Message = body.Error
		if e.Message == "" {
			e.Message = body.Detail
		}
	}
	return e
}

// delivery guarantees a single terminal outcome per call.
type delivery struct {
	callbacks Callbacks
	once      sync.Once
	finished  bool
}

func (d *delivery) dispatch(frames []Frame, output *strings.Builder) (*Result, bool, error) {
	for _, f := range frames {
		if d.finished {
			break
		}
		switch f.Kind {
		case FrameToken:
			output.WriteString(f.Token)
			if d.callbacks.OnToken != nil {
				d.callbacks.OnToken(f.Token, output.String())
			}
		case FrameDone:
			result := *f.Result
			result.Output = output.String()
			r, err := d.succeed(result)
			return r, true, err
		case FrameError:
			r, err := d.fail(&GenerationError{Message: f.Error})
			return r, true, err
		}
	}
	return nil, false, nil
}

func (d *delivery) succeed(result Result) (*Result, error) {
	d.once.Do(func() {
		d.finished = true
		if d.callbacks.OnDone != nil {
			d.callbacks.OnDone(result)
		}
	})
	return &result, nil
}

func (d *delivery) fail(err error) (*Result, error) {
	d.once.Do(func() {
		d.finished = true
		if d.callbacks.OnError != nil {
			d.callbacks.OnError(err)
		}
	})
	return nil, err
}
