package podio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu           sync.Mutex
	current      string
	next         string
	refreshCalls int
	refreshErr   error
}

func (f *fakeTokens) Token(ctx context.Context) (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Credential{AccessToken: f.current}, nil
}

func (f *fakeTokens) Refresh(ctx context.Context, rejected string) (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return Credential{}, f.refreshErr
	}
	f.current = f.next
	return Credential{AccessToken: f.current}, nil
}

func newAPIServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_RetriesOnceAfterUnauthorized(t *testing.T) {
	srv, calls := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "OAuth2 fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_token"}`)
			return
		}
		assert.Equal(t, "/item/42", r.URL.Path)
		fmt.Fprint(w, `{"item_id":42,"title":"Launch Copy","fields":[]}`)
	})
	tokens := &fakeTokens{current: "stale", next: "fresh"}
	client := NewClient(srv.URL, tokens, srv.Client())

	item, err := client.GetItem(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), item.ItemID)
	assert.Equal(t, "Launch Copy", item.Title)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	assert.Equal(t, 1, tokens.refreshCalls)
}

func TestClient_SecondUnauthorizedIsAuthError(t *testing.T) {
	srv, calls := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_token"}`)
	})
	tokens := &fakeTokens{current: "stale", next: "also-stale"}
	client := NewClient(srv.URL, tokens, srv.Client())

	_, err := client.GetItem(context.Background(), 42)
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "want AuthError, got %T", err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	assert.Equal(t, 1, tokens.refreshCalls)
}

func TestClient_RefreshFailureStopsRequest(t *testing.T) {
	srv, calls := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	refreshErr := &AuthError{Op: "refresh", Err: ErrNoRefreshCredentials}
	tokens := &fakeTokens{current: "stale", refreshErr: refreshErr}
	client := NewClient(srv.URL, tokens, srv.Client())

	err := client.Post(context.Background(), "/comment/item/1", map[string]string{"value": "x"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRefreshCredentials)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestClient_GetItemFailureIsFetchError(t *testing.T) {
	srv, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"not_found"}`)
	})
	client := NewClient(srv.URL, &fakeTokens{current: "ok"}, srv.Client())

	_, err := client.GetItem(context.Background(), 7)
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "/item/7", fetchErr.Path)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "not_found")
}

func TestClient_PostComment(t *testing.T) {
	srv, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/comment/item/42", r.URL.Path)
		assert.Equal(t, "OAuth2 ok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"value": "Texto revisado"}, body)

		fmt.Fprint(w, `{"comment_id":99,"value":"Texto revisado"}`)
	})
	client := NewClient(srv.URL, &fakeTokens{current: "ok"}, srv.Client())

	comment, err := client.PostComment(context.Background(), 42, "Texto revisado")
	require.NoError(t, err)
	assert.Equal(t, int64(99), comment.CommentID)
}

func TestClient_PostCommentFailureIsCommentPostError(t *testing.T) {
	srv, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client := NewClient(srv.URL, &fakeTokens{current: "ok"}, srv.Client())

	_, err := client.PostComment(context.Background(), 42, "x")
	var postErr *CommentPostError
	require.True(t, errors.As(err, &postErr))
	assert.Equal(t, int64(42), postErr.ItemID)
}

func TestClient_ValidateHook(t *testing.T) {
	srv, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hook/7/verify/validate", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["code"] != "challenge" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	client := NewClient(srv.URL, &fakeTokens{current: "ok"}, srv.Client())

	require.NoError(t, client.ValidateHook(context.Background(), 7, "challenge"))
	require.Error(t, client.ValidateHook(context.Background(), 7, "wrong"))
}

func TestClient_GetRevisionDiff(t *testing.T) {
	srv, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/42/revision/4/5", r.URL.Path)
		fmt.Fprint(w, `[{"field_id":1,"external_id":"status","type":"category","label":"Status",
			"from":[{"value":{"id":3,"text":"Em produção"}}],
			"to":[{"value":{"id":4,"text":"Pronto para revisão"}}]}]`)
	})
	client := NewClient(srv.URL, &fakeTokens{current: "ok"}, srv.Client())

	diff, err := client.GetRevisionDiff(context.Background(), 42, 4, 5)
	require.NoError(t, err)
	require.Len(t, diff, 1)
	assert.Equal(t, "status", diff[0].ExternalID)

	opt, ok := diff[0].To[0].Option()
	require.True(t, ok)
	assert.Equal(t, Option{ID: 4, Text: "Pronto para revisão"}, opt)
}
