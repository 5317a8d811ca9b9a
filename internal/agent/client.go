package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/good-yellow-bee/climalert/pkg/config"
)

// Event names sent by the notification stream.
const (
	EventOpen                = "open"
	EventHeartbeat           = "heartbeat"
	EventWeatherNotification = "weather-notification"
	EventError               = "error"
	EventMessage             = "message"
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event   string
	Data    string
	ID      string
	Comment bool // keep-alive comment line, no payload
}

// EventStream yields frames from an open stream.
type EventStream interface {
	// Next blocks until the next frame arrives or the stream fails.
	Next() (Frame, error)
	Close() error
}

// Dialer opens the notification stream for a token.
type Dialer interface {
	Open(ctx context.Context, token string) (EventStream, error)
}

// SSEClient opens the server-sent event stream over HTTP.
type SSEClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSSEClient creates a client for the API rooted at baseURL. A nil
// httpClient uses one without an overall timeout, as streams are long-lived.
func NewSSEClient(baseURL string, httpClient *http.Client) *SSEClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &SSEClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// SubscribeURL returns the stream URL for token.
func (c *SSEClient) SubscribeURL(token string) string {
	return c.baseURL + "/notification/subscribe?token=" + url.QueryEscape(token)
}

// Open issues the subscribe request. The stream is open once the server
// answers 200 with an event-stream body.
func (c *SSEClient) Open(ctx context.Context, token string) (EventStream, error) {
	return OpenStream(ctx, c.httpClient, c.SubscribeURL(token), nil)
}

// OpenStream issues a GET for an event stream at rawURL.
func OpenStream(ctx context.Context, httpClient *http.Client, rawURL string, header http.Header) (EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", config.UserAgent())

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("open stream: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("open stream: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	return newSSEStream(resp.Body), nil
}

// MaxLineSize bounds a single event-stream line and the data of one frame.
const MaxLineSize = 1 << 20

// ErrLineTooLong is returned when the server sends a line or frame larger
// than MaxLineSize. The stream is unusable afterwards.
var ErrLineTooLong = errors.New("event stream line too long")

// sseStream parses the text/event-stream wire format.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	closeOnce sync.Once
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	return &sseStream{
		body:    body,
		scanner: scanner,
	}
}

// Next reads lines until a frame is complete. Comment lines are returned as
// their own frame so callers can treat them as activity.
func (s *sseStream) Next() (Frame, error) {
	var (
		frame    Frame
		data     []string
		dataSize int
		hasData  bool
	)

	for {
		if !s.scanner.Scan() {
			err := s.scanner.Err()
			switch {
			case err == nil:
				return Frame{}, io.ErrUnexpectedEOF
			case errors.Is(err, bufio.ErrTooLong):
				return Frame{}, fmt.Errorf("%w: over %d bytes", ErrLineTooLong, MaxLineSize)
			default:
				return Frame{}, err
			}
		}
		line := s.scanner.Text()

		if line == "" {
			if !hasData && frame.Event == "" {
				continue
			}
			if frame.Event == "" {
				frame.Event = EventMessage
			}
			frame.Data = strings.Join(data, "\n")
			return frame, nil
		}

		if strings.HasPrefix(line, ":") {
			if !hasData && frame.Event == "" {
				return Frame{Comment: true, Data: strings.TrimSpace(line[1:])}, nil
			}
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.Event = value
		case "data":
			dataSize += len(value) + 1
			if dataSize > MaxLineSize {
				return Frame{}, fmt.Errorf("%w: frame data over %d bytes", ErrLineTooLong, MaxLineSize)
			}
			data = append(data, value)
			hasData = true
		case "id":
			frame.ID = value
		}
	}
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
