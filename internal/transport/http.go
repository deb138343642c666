package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tanq16/hanzo/internal/utils"
)

// HTTP downloads over http and https. Redirects are never followed by the
// underlying client; they surface as Finished events so the session can
// re-target and restart the file.
type HTTP struct {
	client  *http.Client
	bufSize int
	log     zerolog.Logger
}

func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTP{
		client:  client,
		bufSize: utils.DefaultBufferSize,
		log:     utils.GetLogger("transport-http"),
	}
}

func (t *HTTP) Issue(ctx context.Context, req Request) Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &reqHandle{
		events: make(chan Event, 16),
		cancel: cancel,
	}
	go t.run(ctx, req, h.events)
	return h
}

func (t *HTTP) run(ctx context.Context, req Request, events chan<- Event) {
	defer close(events)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Target, nil)
	if err != nil {
		events <- Event{Finished: &Finished{Err: Fatal(err)}}
		return
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", req.Offset))
		t.log.Debug().Str("url", req.Target).Int64("offset", req.Offset).Msg("Resuming with range request")
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		events <- Event{Finished: &Finished{Err: err}}
		return
	}
	defer resp.Body.Close()
	if loc := redirectLocation(resp); loc != "" {
		t.log.Debug().Str("url", req.Target).Str("location", loc).Msg("Server redirected")
		events <- Event{Finished: &Finished{Redirect: loc}}
		return
	}
	if err := checkStatus(resp.StatusCode, req.Offset); err != nil {
		events <- Event{Finished: &Finished{Err: err}}
		return
	}
	var total int64
	if resp.ContentLength > 0 {
		total = req.Offset + resp.ContentLength
	}
	if resp.StatusCode == http.StatusPartialContent {
		if size := parseContentRange(resp.Header.Get("Content-Range")); size > 0 {
			total = size
		}
	}
	if err := stream(events, resp.Body, req.Offset, total, t.bufSize); err != nil {
		events <- Event{Finished: &Finished{Err: err}}
		return
	}
	events <- Event{Finished: &Finished{}}
}

func redirectLocation(resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return resp.Header.Get("Location")
	}
	return ""
}

// checkStatus maps response codes onto the error taxonomy. A 200 answer
// to a ranged request is rejected because appending a full body to the
// partial file would corrupt it.
func checkStatus(code int, offset int64) error {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("status %d: %w", code, ErrNotFound)
	case offset > 0 && code == http.StatusOK:
		return fmt.Errorf("status %d for ranged request: %w", code, ErrRangeUnsupported)
	case offset > 0 && code != http.StatusPartialContent:
		return fmt.Errorf("status %d: %w", code, ErrBadStatus)
	case offset == 0 && code != http.StatusOK && code != http.StatusPartialContent:
		return fmt.Errorf("status %d: %w", code, ErrBadStatus)
	}
	return nil
}
