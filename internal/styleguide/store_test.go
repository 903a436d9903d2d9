package styleguide

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const docBody = `{
  "documentId": "%s",
  "body": {"content": [
    {"sectionBreak": {}},
    {"paragraph": {"elements": [{"textRun": {"content": "  Primeiro parágrafo.\n"}}]}},
    {"paragraph": {"elements": [{"textRun": {"content": "\n"}}]}},
    {"paragraph": {"elements": [{"textRun": {"content": "Segundo "}}, {"textRun": {"content": "parágrafo.\n"}}]}}
  ]}
}`

type googleFake struct {
	srv        *httptest.Server
	listCalls  int32
	docCalls   int32
	lastQuery  atomic.Value
	files      string
	docStatus  int
	listStatus int
}

func newGoogleFake(t *testing.T) *googleFake {
	t.Helper()
	f := &googleFake{files: `{"files":[]}`, docStatus: http.StatusOK, listStatus: http.StatusOK}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/files"):
			atomic.AddInt32(&f.listCalls, 1)
			f.lastQuery.Store(r.URL.Query().Get("q"))
			w.WriteHeader(f.listStatus)
			fmt.Fprint(w, f.files)
		case strings.Contains(r.URL.Path, "/documents/"):
			atomic.AddInt32(&f.docCalls, 1)
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			w.WriteHeader(f.docStatus)
			if f.docStatus != http.StatusOK {
				fmt.Fprint(w, `{"error":{"code":404,"message":"not found"}}`)
				return
			}
			fmt.Fprintf(w, docBody, id)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *googleFake) store(t *testing.T, folderID string) *Store {
	t.Helper()
	ctx := context.Background()
	opts := []option.ClientOption{
		option.WithEndpoint(f.srv.URL + "/"),
		option.WithHTTPClient(f.srv.Client()),
	}
	docsService, err := docs.NewService(ctx, opts...)
	require.NoError(t, err)
	driveService, err := drive.NewService(ctx, opts...)
	require.NoError(t, err)

	s, err := NewWithServices(docsService, driveService, folderID)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_DocumentText(t *testing.T) {
	fake := newGoogleFake(t)
	s := fake.store(t, "")

	text, err := s.DocumentText(context.Background(), "https://docs.google.com/document/d/doc-1/edit?usp=sharing")
	require.NoError(t, err)
	assert.Equal(t, "Primeiro parágrafo.\nSegundo\nparágrafo.", text)
}

func TestStore_DocumentTextNotADoc(t *testing.T) {
	fake := newGoogleFake(t)
	s := fake.store(t, "")

	text, err := s.DocumentText(context.Background(), "https://example.com/texto.pdf")
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, atomic.LoadInt32(&fake.docCalls))
}

func TestStore_DocumentTextFailure(t *testing.T) {
	fake := newGoogleFake(t)
	fake.docStatus = http.StatusNotFound
	s := fake.store(t, "")

	_, err := s.DocumentText(context.Background(), "https://docs.google.com/document/d/missing/edit")
	require.Error(t, err)

	var docErr *DocumentError
	require.True(t, errors.As(err, &docErr))
	assert.Equal(t, "missing", docErr.DocumentID)
}

func TestStore_StyleGuideFoundAndCached(t *testing.T) {
	fake := newGoogleFake(t)
	fake.files = `{"files":[{"id":"guide-1","name":"acme-muller-co"}]}`
	s := fake.store(t, "folder-1")

	got := s.StyleGuide(context.Background(), "Acme Müller & Co.")
	assert.Equal(t, "Primeiro parágrafo.\nSegundo\nparágrafo.", got)

	q, _ := fake.lastQuery.Load().(string)
	assert.Contains(t, q, "'folder-1' in parents")
	assert.Contains(t, q, "name = 'acme-muller-co'")

	again := s.StyleGuide(context.Background(), "acme muller co")
	assert.Equal(t, got, again)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.listCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.docCalls))
}

func TestStore_StyleGuideMissIsCached(t *testing.T) {
	fake := newGoogleFake(t)
	s := fake.store(t, "folder-1")

	assert.Empty(t, s.StyleGuide(context.Background(), "Acme"))
	assert.Empty(t, s.StyleGuide(context.Background(), "Acme"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.listCalls))
}

func TestStore_StyleGuideLookupErrorIsNotCached(t *testing.T) {
	fake := newGoogleFake(t)
	fake.listStatus = http.StatusInternalServerError
	fake.files = `{"error":{"code":500,"message":"backend"}}`
	s := fake.store(t, "folder-1")

	assert.Empty(t, s.StyleGuide(context.Background(), "Acme"))
	assert.Empty(t, s.StyleGuide(context.Background(), "Acme"))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&fake.listCalls), int32(2))
}

func TestStore_StyleGuideWithoutFolder(t *testing.T) {
	fake := newGoogleFake(t)
	s := fake.store(t, "")

	assert.Empty(t, s.StyleGuide(context.Background(), "Acme"))
	assert.Zero(t, atomic.LoadInt32(&fake.listCalls))
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `o\'brien`, escapeQuery("o'brien"))
	assert.Equal(t, `a\\b`, escapeQuery(`a\b`))
}
