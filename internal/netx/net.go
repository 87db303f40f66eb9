// Package netx holds the HTTP transfer helpers used by the blob stores.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ProgressFunc receives the running byte count of a transfer and its
// declared total.
type ProgressFunc func(transferred, total int64)

// ProgressReader counts bytes as they are read from the wrapped reader and
// reports them to fn. It is safe to read from one goroutine only; fn is
// never called concurrently.
type ProgressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc

	mu sync.Mutex
	n  int64
}

// NewProgressReader wraps r. A nil fn disables reporting.
func NewProgressReader(r io.Reader, total int64, fn ProgressFunc) *ProgressReader {
	return &ProgressReader{r: r, total: total, fn: fn}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.n += int64(n)
		cur := p.n
		p.mu.Unlock()
		if p.fn != nil {
			p.fn(cur, p.total)
		}
	}
	return n, err
}

// Transferred returns the number of bytes read so far.
func (p *ProgressReader) Transferred() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

// UploadToPresignedURL streams body to a presigned PUT URL. size becomes the
// Content-Length, since S3 rejects chunked uploads to presigned URLs. Extra
// headers (typically the signed ones returned by the presigner) are copied
// onto the request. Any status outside 2xx is an error carrying the
// response body.
func UploadToPresignedURL(ctx context.Context, client *http.Client, url string, body io.Reader, size int64, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	for k, vs := range header {
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}
