package helpdesk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestClientHealth_StatusMapping(t *testing.T) {
	for _, tc := range []struct {
		name    string
		status  int
		healthy bool
	}{
		{"ok", http.StatusOK, true},
		{"no content", http.StatusNoContent, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodGet, r.Method)
				require.Equal(t, HealthPath, r.URL.Path)
				w.WriteHeader(tc.status)
			}))
			err := c.Health(context.Background())
			if tc.healthy {
				require.NoError(t, err)
				return
			}
			var ce *ConnectivityError
			require.True(t, errors.As(err, &ce))
			require.Equal(t, tc.status, ce.StatusCode)
		})
	}
}

func TestClientHealth_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	err = c.Health(context.Background())
	var ce *ConnectivityError
	require.True(t, errors.As(err, &ce))
	require.Error(t, ce.Err)
}

func TestClientChat_SendsFixedParameters(t *testing.T) {
	var got ChatRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, ChatPath, r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"Try restarting your router.","context_used":"faq:router-reset","processing_time":1.23,"query":"router not working","timestamp":"2024-01-01T00:00:00"}`))
	}))

	resp, err := c.Chat(context.Background(), NewChatRequest("router not working"))
	require.NoError(t, err)
	require.Equal(t, ChatRequest{Query: "router not working", TopK: 4, MaxTokens: 150}, got)
	require.Equal(t, "Try restarting your router.", resp.Response)
	require.Equal(t, "faq:router-reset", resp.ContextUsed)
	require.NotNil(t, resp.ProcessingTime)
	require.InDelta(t, 1.23, *resp.ProcessingTime, 1e-9)
}

func TestClientChat_ErrorBodyPreference(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
		want string
	}{
		{"detail wins", `{"error":"bad_request","detail":"query too long","timestamp":"t"}`, "query too long"},
		{"error fallback", `{"error":"bad_request","timestamp":"t"}`, "bad_request"},
		{"empty object", `{}`, FallbackErrorMessage},
		{"not json", `<html>oops</html>`, FallbackErrorMessage},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			}))
			_, err := c.Chat(context.Background(), NewChatRequest("q"))
			var ae *ApplicationError
			require.True(t, errors.As(err, &ae))
			require.Equal(t, http.StatusBadRequest, ae.StatusCode)
			require.Equal(t, tc.want, UserMessage(err))
			require.Equal(t, "application", Outcome(err))
		})
	}
}

func TestClientChat_MalformedSuccessBody(t *testing.T) {
	for _, body := range []string{`not json`, `{"context_used":"x"}`, `[]`, `null`} {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := c.Chat(context.Background(), NewChatRequest("q"))
		var me *MalformedResponseError
		require.True(t, errors.As(err, &me), "body %q", body)
		require.Equal(t, MalformedResponseMessage, UserMessage(err))
	}
}

func TestClientChat_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), WithTimeout(50*time.Millisecond))

	_, err := c.Chat(context.Background(), NewChatRequest("q"))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, TransportErrorMessage, UserMessage(err))
	require.Equal(t, "transport", Outcome(err))
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	require.Error(t, err)
	_, err = NewClient("http://")
	require.Error(t, err)

	c, err := NewClient("")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.BaseURL())
}

func TestClientEndpoint_TrimsTrailingSlash(t *testing.T) {
	c, err := NewClient("http://example.com/helpdesk/")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/helpdesk/api/v1/chat/", c.endpoint(ChatPath))
}
