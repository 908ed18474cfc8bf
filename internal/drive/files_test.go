package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFile_QueriesByNameAndTrashed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		assert.Equal(t, "name='prompts.json' and trashed=false", q)

		_ = json.NewEncoder(w).Encode(fileListResponse{Files: []FileHandle{
			{ID: "file-1", Name: "prompts.json", ModifiedTime: "2026-01-02T03:04:05Z"},
			{ID: "file-2", Name: "prompts.json"},
		}})
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	fh, err := c.FindFile(context.Background())
	require.NoError(t, err)
	require.NotNil(t, fh)

	// First match wins on duplicate names.
	assert.Equal(t, "file-1", fh.ID)
}

func TestFindFile_NoMatchReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(fileListResponse{})
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	fh, err := c.FindFile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, fh)
}

func TestCreateFile_SendsNameMimeAndDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "prompts.json", body["name"])
		assert.Equal(t, "application/json", body["mimeType"])
		assert.NotEmpty(t, body["description"])

		_ = json.NewEncoder(w).Encode(FileHandle{ID: "created-1", Name: "prompts.json"})
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	fh, err := c.CreateFile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "created-1", fh.ID)
}

func TestFindOrCreateFile_CreatesWhenAbsentAndCachesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(fileListResponse{})
			return
		}

		_ = json.NewEncoder(w).Encode(FileHandle{ID: "new-id"})
	}))
	defer srv.Close()

	c, _, ids := newTestClient(t, srv.URL)

	fh, err := c.FindOrCreateFile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-id", fh.ID)
	assert.Equal(t, "new-id", ids.id)
}

func TestResolveID_PrefersCachedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected when the id is cached")
	}))
	defer srv.Close()

	c, _, ids := newTestClient(t, srv.URL)
	ids.id = "cached-id"

	id, err := c.resolveID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached-id", id)
}

func TestResolveID_NoRemoteFileIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(fileListResponse{})
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	_, err := c.resolveID(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithIDRecovery_StaleIDRediscoveredOnce(t *testing.T) {
	var searches atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/files") {
			searches.Add(1)
			_ = json.NewEncoder(w).Encode(fileListResponse{Files: []FileHandle{{ID: "fresh-id"}}})

			return
		}

		t.Errorf("unexpected request %s", r.URL)
	}))
	defer srv.Close()

	c, _, ids := newTestClient(t, srv.URL)
	ids.id = "stale-id"

	var attempts []string

	err := c.withIDRecovery(context.Background(), func(id string) error {
		attempts = append(attempts, id)
		if id == "stale-id" {
			return &Error{StatusCode: http.StatusNotFound, Err: ErrNotFound}
		}

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"stale-id", "fresh-id"}, attempts)
	assert.Equal(t, int32(1), searches.Load())
	assert.Equal(t, "fresh-id", ids.id)
}

func TestWithIDRecovery_PersistentNotFoundSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(fileListResponse{Files: []FileHandle{{ID: "id-2"}}})
	}))
	defer srv.Close()

	c, _, ids := newTestClient(t, srv.URL)
	ids.id = "id-1"

	calls := 0

	err := c.withIDRecovery(context.Background(), func(string) error {
		calls++
		return &Error{StatusCode: http.StatusNotFound, Err: ErrNotFound}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	// Exactly one recovery attempt.
	assert.Equal(t, 2, calls)
}

func TestMetadata_AbsentFileYieldsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(fileListResponse{})
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	meta, err := c.Metadata(context.Background())
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestMetadata_ParsesSizeAndTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Metadata{
			ID:       "file-1",
			Name:     "prompts.json",
			Modified: "2026-01-02T03:04:05Z",
			Size:     "1234",
		})
	}))
	defer srv.Close()

	c, _, ids := newTestClient(t, srv.URL)
	ids.id = "file-1"

	meta, err := c.Metadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, int64(1234), meta.SizeBytes())
	assert.Equal(t, 2026, meta.ModifiedAt().Year())
}

func TestMetadata_StaleIDRefreshesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/files/stale-id"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasSuffix(r.URL.Path, "/files/fresh-id"):
			_ = json.NewEncoder(w).Encode(Metadata{ID: "fresh-id", Name: "prompts.json"})
		default:
			_ = json.NewEncoder(w).Encode(fileListResponse{Files: []FileHandle{{ID: "fresh-id"}}})
		}
	}))
	defer srv.Close()

	c, _, ids := newTestClient(t, srv.URL)
	ids.id = "stale-id"

	meta, err := c.Metadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "fresh-id", meta.ID)

	// The stale id was replaced, not merely cleared.
	assert.Equal(t, "fresh-id", ids.id)
}

func TestResolvePath_WalksParentChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/files/folder-inner"):
			_ = json.NewEncoder(w).Encode(folderRef{ID: "folder-inner", Name: "Prompts", Parents: []string{"folder-outer"}})
		case strings.HasSuffix(r.URL.Path, "/files/folder-outer"):
			_ = json.NewEncoder(w).Encode(folderRef{ID: "folder-outer", Name: "Backups", Parents: []string{"root"}})
		default:
			t.Errorf("unexpected request %s", r.URL)
		}
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	meta := &Metadata{Name: "prompts.json", Parents: []string{"folder-inner"}}

	path, err := c.ResolvePath(context.Background(), meta)
	require.NoError(t, err)
	assert.Equal(t, "My Drive/Backups/Prompts/prompts.json", path)
}

func TestResolvePath_RootFile(t *testing.T) {
	c, _, _ := newTestClient(t, "http://127.0.0.1:0")

	meta := &Metadata{Name: "prompts.json", Parents: []string{"root"}}

	path, err := c.ResolvePath(context.Background(), meta)
	require.NoError(t, err)
	assert.Equal(t, "My Drive/prompts.json", path)
}

func TestResolvePath_DepthBounded(t *testing.T) {
	var fetches atomic.Int32

	// Every folder points at itself: an unbounded walk would never stop.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := fetches.Add(1)
		_ = json.NewEncoder(w).Encode(folderRef{
			Name:    fmt.Sprintf("f%d", n),
			Parents: []string{"loop"},
		})
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	meta := &Metadata{Name: "prompts.json", Parents: []string{"loop"}}

	path, err := c.ResolvePath(context.Background(), meta)
	require.NoError(t, err)
	assert.Equal(t, int32(maxPathDepth), fetches.Load())
	assert.True(t, strings.HasPrefix(path, "My Drive/"))
	assert.True(t, strings.HasSuffix(path, "/prompts.json"))
}

func TestDelete_NoCachedIDIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected without a cached id")
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	require.NoError(t, c.Delete(context.Background()))
}

func TestDelete_404IsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _, ids := newTestClient(t, srv.URL)
	ids.id = "gone-id"

	require.NoError(t, c.Delete(context.Background()))
	assert.Empty(t, ids.id)
}
