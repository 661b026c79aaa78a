package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDigest = digest.Digest("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

func TestSelectTags(t *testing.T) {
	tags := []string{"a", "b", "atest", "latest"}

	assert.Equal(t, []string{"latest"}, SelectTags(tags, "l*"))
	assert.Equal(t, []string{"atest", "latest"}, SelectTags(tags, "*test"))
	assert.Equal(t, tags, SelectTags(tags, "*"))
	assert.Empty(t, SelectTags(tags, "nomatch-*"))
	assert.Empty(t, SelectTags(tags, "["))
}

func TestManifestDigest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/foo/manifests/latest", r.URL.Path)
		require.Equal(t, manifestV2MediaType, r.Header.Get("Accept"))
		w.Header().Set(digestHeader, testDigest.String())
	}))
	defer srv.Close()

	dgst, err := newTestClient(t, srv).ManifestDigest(context.Background(), "foo", "latest")
	require.NoError(t, err)
	assert.Equal(t, testDigest, dgst)
}

func TestManifestDigestMissingHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := newTestClient(t, srv).ManifestDigest(context.Background(), "foo", "latest")
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
}

func TestDeleteTags(t *testing.T) {
	deleted := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/foo/tags/list":
			w.Write([]byte(`{"tags":["a","atest","latest","stale"]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v2/foo/manifests/stale":
			// Tag already gone by the time we resolve its digest.
			http.NotFound(w, r)
		case r.Method == http.MethodGet:
			w.Header().Set(digestHeader, testDigest.String())
		case r.Method == http.MethodDelete:
			deleted[r.URL.Path] = true
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer srv.Close()

	selected, failed, notFound, err := newTestClient(t, srv).DeleteTags(context.Background(), "foo", "*t*")
	require.NoError(t, err)
	assert.Equal(t, []string{"atest", "latest", "stale"}, selected)
	assert.Empty(t, failed)
	assert.Equal(t, []string{"stale"}, notFound)
	assert.True(t, deleted["/v2/foo/manifests/"+testDigest.String()])
}

func TestDeleteTagsFailuresDoNotStopTheRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/foo/tags/list":
			w.Write([]byte(`{"tags":["bad","good"]}`))
		case r.Method == http.MethodGet:
			w.Header().Set(digestHeader, testDigest.String())
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	selected, failed, notFound, err := newTestClient(t, srv).DeleteTags(context.Background(), "foo", "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "good"}, selected)
	assert.Equal(t, []string{"bad", "good"}, failed)
	assert.Empty(t, notFound)
}
