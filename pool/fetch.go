package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/gabriel-vasile/mimetype"
)

// Fetcher produces the bytes for one task. Implementations must honor
// ctx cancellation and may call progress with increasing values in
// [0, 99].
type Fetcher interface {
	// Fetch tries endpoints in order, moving to the next candidate
	// only after the current one fails outright.
	Fetch(ctx context.Context, endpoints []string, progress func(int)) (Result, error)
}

// HTTPFetcher is the default Fetcher: a plain GET per endpoint with
// chunked progress reporting and media-type sniffing when the server
// does not declare a usable Content-Type.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher constructs an HTTPFetcher. A nil client means
// http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher with ordered endpoint fallback. The error
// for an exhausted candidate list joins every per-endpoint failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, endpoints []string, progress func(int)) (Result, error) {
	if len(endpoints) == 0 {
		return Result{}, ErrNoEndpoints
	}

	var errs []error
	for _, ep := range endpoints {
		res, err := f.fetchOne(ctx, ep, progress)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			// Cancellation is not an endpoint failure; stop the fallback.
			return Result{}, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", ep, err))
	}
	return Result{}, errors.Join(errs...)
}

const progressChunk = 32 * 1024

func (f *HTTPFetcher) fetchOne(ctx context.Context, endpoint string, progress func(int)) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := readAllProgress(resp.Body, resp.ContentLength, progress)
	if err != nil {
		return Result{}, err
	}

	mt := resp.Header.Get("Content-Type")
	if mt == "" || mt == "application/octet-stream" {
		// Servers frequently ship model/texture binaries untyped.
		mt = mimetype.Detect(data).String()
	}

	return Result{
		Bytes:          data,
		MIMEType:       mt,
		Filename:       filenameFromURL(endpoint),
		SourceEndpoint: endpoint,
	}, nil
}

// readAllProgress reads r to the end, emitting progress in [0, 99]
// when the total size is known. The terminal 100 belongs to the pool,
// not the fetcher.
func readAllProgress(r io.Reader, total int64, progress func(int)) ([]byte, error) {
	if progress == nil || total <= 0 {
		return io.ReadAll(r)
	}

	var (
		data []byte
		buf  = make([]byte, progressChunk)
		last = -1
	)
	for {
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if v := int(int64(99) * int64(len(data)) / total); v > last && v <= 99 {
			last = v
			progress(v)
		}
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// filenameFromURL derives a best-effort filename from the endpoint's
// path ("" when there is none).
func filenameFromURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
