package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// glbMagic is a minimal binary-glTF header, enough for sniffing to see
// a non-text payload.
var glbMagic = []byte{0x67, 0x6c, 0x54, 0x46, 0x02, 0x00, 0x00, 0x00}

func TestHTTPFetcher_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "model/gltf-binary")
		_, _ = w.Write(glbMagic)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client())
	res, err := f.Fetch(context.Background(), []string{srv.URL + "/assets/tree.glb"}, nil)
	require.NoError(t, err)
	require.Equal(t, glbMagic, res.Bytes)
	require.Equal(t, "model/gltf-binary", res.MIMEType)
	require.Equal(t, "tree.glb", res.Filename)
	require.Equal(t, srv.URL+"/assets/tree.glb", res.SourceEndpoint)
}

// An untyped response gets its media type sniffed from the bytes.
func TestHTTPFetcher_SniffsMIME(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(`{"asset":{"version":"2.0"}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client())
	res, err := f.Fetch(context.Background(), []string{srv.URL + "/scene.gltf"}, nil)
	require.NoError(t, err)
	require.NotEqual(t, "application/octet-stream", res.MIMEType)
	require.NotEmpty(t, res.MIMEType)
}

// The second candidate is tried only after the first fails outright.
func TestHTTPFetcher_EndpointFallback(t *testing.T) {
	t.Parallel()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer good.Close()

	f := NewHTTPFetcher(nil)
	res, err := f.Fetch(context.Background(), []string{bad.URL + "/a.bin", good.URL + "/a.bin"}, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), res.Bytes)
	require.Equal(t, good.URL+"/a.bin", res.SourceEndpoint)
}

// When every candidate fails, the error mentions each endpoint.
func TestHTTPFetcher_AllEndpointsFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(nil)
	_, err := f.Fetch(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "/a")
	require.Contains(t, err.Error(), "/b")
}

// Cancellation stops the fallback chain instead of trying the next
// candidate.
func TestHTTPFetcher_CancelStopsFallback(t *testing.T) {
	t.Parallel()

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewHTTPFetcher(nil)
	_, err := f.Fetch(ctx, []string{srv.URL + "/a", srv.URL + "/b"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.LessOrEqual(t, hits, 1)
}

// Progress values are monotone within [0, 99] when the size is known.
func TestHTTPFetcher_Progress(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 256*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var seen []int
	f := NewHTTPFetcher(nil)
	res, err := f.Fetch(context.Background(), []string{srv.URL + "/big.bin"}, func(v int) {
		seen = append(seen, v)
	})
	require.NoError(t, err)
	require.Len(t, res.Bytes, len(payload))

	require.NotEmpty(t, seen)
	last := -1
	for _, v := range seen {
		require.Greater(t, v, last, "progress must strictly increase")
		require.LessOrEqual(t, v, 99)
		last = v
	}
	require.Equal(t, 99, seen[len(seen)-1])
}

func TestFilenameFromURL(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"https://cdn.example.com/assets/tree.glb", "tree.glb"},
		{"https://cdn.example.com/assets/tree.glb?v=2", "tree.glb"},
		{"https://cdn.example.com/", ""},
		{"https://cdn.example.com", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, filenameFromURL(c.in), "url %q", c.in)
	}
}
