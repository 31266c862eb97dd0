package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func newClient(t *testing.T, h http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/api/", Tokens: tokens, Logger: zap.NewNop()})
	require.NoError(t, err)
	return c
}

func TestFetchMessagesShapes(t *testing.T) {
	cases := map[string]string{
		"bare array":    `[{"id":"1","content":"a"},{"id":"2","content":"b"}]`,
		"messages":      `{"messages":[{"id":"1","content":"a"},{"id":"2","content":"b"}]}`,
		"data array":    `{"data":[{"id":"1","content":"a"},{"id":"2","content":"b"}]}`,
		"data messages": `{"code":0,"data":{"messages":[{"id":"1","content":"a"},{"id":"2","content":"b"}]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/tickets/T-1/messages", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}, nil)
			got, err := c.FetchMessages(context.Background(), "T-1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "1", got[0]["id"])
			assert.Equal(t, "b", got[1]["content"])
		})
	}
}

func TestFetchMessagesEmptyAndUnknown(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":0}`))
	}, nil)
	got, err := c.FetchMessages(context.Background(), "T")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchMessagesRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"1","content":"a"}]`))
	}, nil)
	got, err := c.FetchMessages(context.Background(), "T")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchMessagesFailure(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil)
	_, err := c.FetchMessages(context.Background(), "T")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrHistoryUnavailable))
}

func TestPostMessageCarriesPayloadAndToken(t *testing.T) {
	var got model.OutboundMessage
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"MSG-7","content":"hi"}`))
	}, staticToken("tok"))

	out, err := c.PostMessage(context.Background(), "T", model.OutboundMessage{
		Content: "hi", IsClient: true, UserID: "u1", UserName: "Ann", Timestamp: "2024-05-01T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "MSG-7", out["id"])
	assert.Equal(t, "hi", got.Content)
	assert.True(t, got.IsClient)
	assert.Equal(t, "u1", got.UserID)
}

func TestPostMessageWithoutBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil)
	out, err := c.PostMessage(context.Background(), "T", model.OutboundMessage{Content: "x"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPostMessageFailure(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)
	_, err := c.PostMessage(context.Background(), "T", model.OutboundMessage{Content: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSendFailed))
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://x"})
	assert.Error(t, err)
	_, err = New(Config{})
	assert.Error(t, err)
}
