package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEStream_Next(t *testing.T) {
	raw := "event: open\n\n" +
		": keep-alive\n\n" +
		"event: weather-notification\r\nid: 7\r\ndata: {\"a\":1,\r\ndata: \"b\":2}\r\n\r\n" +
		"data: plain message\n\n" +
		"retry: 3000\n\n" +
		"event: heartbeat\ndata:ping\n\n"

	s := newSSEStream(io.NopCloser(strings.NewReader(raw)))

	want := []Frame{
		{Event: EventOpen},
		{Comment: true, Data: "keep-alive"},
		{Event: EventWeatherNotification, ID: "7", Data: "{\"a\":1,\n\"b\":2}"},
		{Event: EventMessage, Data: "plain message"},
		{Event: EventHeartbeat, Data: "ping"},
	}

	for i, w := range want {
		got, err := s.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, w, got, "frame %d", i)
	}

	_, err := s.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSSEStream_LineTooLong(t *testing.T) {
	raw := "event: heartbeat\ndata: ok\n\n" +
		"data: " + strings.Repeat("x", MaxLineSize+1) + "\n\n"
	s := newSSEStream(io.NopCloser(strings.NewReader(raw)))

	f, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, EventHeartbeat, f.Event)

	_, err = s.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestSSEStream_FrameTooLarge(t *testing.T) {
	line := "data: " + strings.Repeat("y", MaxLineSize/2) + "\n"
	raw := "event: weather-notification\n" + line + line + line + "\n"
	s := newSSEStream(io.NopCloser(strings.NewReader(raw)))

	_, err := s.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestSSEClient_Open(t *testing.T) {
	var gotToken, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notification/subscribe" {
			http.NotFound(w, r)
			return
		}
		gotToken = r.URL.Query().Get("token")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "event: heartbeat\ndata: ok\n\n")
	}))
	defer server.Close()

	c := NewSSEClient(server.URL+"/api/", nil)
	stream, err := c.Open(context.Background(), "a+b=c")
	require.NoError(t, err)
	defer stream.Close()

	f, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, EventHeartbeat, f.Event)
	assert.Equal(t, "a+b=c", gotToken)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.NoError(t, stream.Close())
}

func TestSSEClient_OpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad token", http.StatusUnauthorized)
			},
		},
		{
			name: "not an event stream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewSSEClient(server.URL, nil).Open(context.Background(), "t")
			assert.Error(t, err)
		})
	}
}
