package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// collect drains a handle until its channel closes.
func collect(t *testing.T, h Handle) ([]byte, []Progress, *Finished) {
	t.Helper()
	var data []byte
	var progress []Progress
	var fin *Finished
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return data, progress, fin
			}
			switch {
			case ev.Data != nil:
				data = append(data, ev.Data...)
			case ev.Progress != nil:
				progress = append(progress, *ev.Progress)
			case ev.Finished != nil:
				fin = ev.Finished
			}
		case <-timeout:
			t.Fatal("no events before timeout")
		}
	}
}

func TestHTTPSuccess(t *testing.T) {
	r := require.New(t)
	content := "hello world"
	var gotAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAgent.Store(req.Header.Get("User-Agent"))
		io.WriteString(w, content)
	}))
	defer srv.Close()
	tr := NewHTTP(newTestClient())
	h := tr.Issue(context.Background(), Request{
		Target:  srv.URL,
		Headers: map[string]string{"User-Agent": "hanzo(linux)/dev/42"},
	})
	data, progress, fin := collect(t, h)
	r.NotNil(fin)
	r.NoError(fin.Err)
	r.Empty(fin.Redirect)
	r.Equal(content, string(data))
	r.Equal("hanzo(linux)/dev/42", gotAgent.Load())
	r.NotEmpty(progress)
	last := progress[len(progress)-1]
	r.Equal(int64(len(content)), last.Read)
	r.Equal(int64(len(content)), last.Total)
}

func TestHTTPRangeResume(t *testing.T) {
	r := require.New(t)
	content := "hello world"
	var gotRange atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rangeHeader := req.Header.Get("Range")
		gotRange.Store(rangeHeader)
		offset, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-"))
		if err != nil || offset >= len(content) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(content)-1, len(content)))
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, content[offset:])
	}))
	defer srv.Close()
	tr := NewHTTP(newTestClient())
	h := tr.Issue(context.Background(), Request{Target: srv.URL, Offset: 4})
	data, progress, fin := collect(t, h)
	r.NotNil(fin)
	r.NoError(fin.Err)
	r.Equal("bytes=4-", gotRange.Load())
	r.Equal("o world", string(data))
	r.NotEmpty(progress)
	last := progress[len(progress)-1]
	r.Equal(int64(len(content)), last.Read)
	r.Equal(int64(len(content)), last.Total)
}

func TestHTTPFullBodyOnRangedRequest(t *testing.T) {
	r := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Ignores the Range header and answers 200 with the full body
		io.WriteString(w, "hello world")
	}))
	defer srv.Close()
	tr := NewHTTP(newTestClient())
	h := tr.Issue(context.Background(), Request{Target: srv.URL, Offset: 4})
	data, _, fin := collect(t, h)
	r.NotNil(fin)
	r.ErrorIs(fin.Err, ErrRangeUnsupported)
	r.False(Retryable(fin.Err))
	r.Empty(data)
}

func TestHTTPNotFound(t *testing.T) {
	r := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer srv.Close()
	tr := NewHTTP(newTestClient())
	h := tr.Issue(context.Background(), Request{Target: srv.URL})
	_, _, fin := collect(t, h)
	r.NotNil(fin)
	r.ErrorIs(fin.Err, ErrNotFound)
	r.False(Retryable(fin.Err))
}

func TestHTTPServerErrorIsFinal(t *testing.T) {
	r := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	tr := NewHTTP(newTestClient())
	h := tr.Issue(context.Background(), Request{Target: srv.URL})
	_, _, fin := collect(t, h)
	r.NotNil(fin)
	r.ErrorIs(fin.Err, ErrBadStatus)
	r.False(Retryable(fin.Err))
}

func TestHTTPRedirectNotFollowed(t *testing.T) {
	r := require.New(t)
	var realHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/real", http.StatusFound)
	})
	mux.HandleFunc("/real", func(w http.ResponseWriter, req *http.Request) {
		realHits.Add(1)
		io.WriteString(w, "content")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	tr := NewHTTP(newTestClient())
	h := tr.Issue(context.Background(), Request{Target: srv.URL + "/start"})
	data, _, fin := collect(t, h)
	r.NotNil(fin)
	r.NoError(fin.Err)
	r.Equal("/real", fin.Redirect)
	r.Empty(data)
	r.Equal(int64(0), realHits.Load())
}

func TestHTTPCancelMidBody(t *testing.T) {
	r := require.New(t)
	release := make(chan struct{})
	defer close(release)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write(make([]byte, 10))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}))
	defer srv.Close()
	tr := NewHTTP(newTestClient())
	h := tr.Issue(context.Background(), Request{Target: srv.URL})
	var fin *Finished
	sawData := false
	timeout := time.After(10 * time.Second)
	for fin == nil {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				t.Fatal("channel closed without a finished event")
			}
			switch {
			case ev.Data != nil:
				if !sawData {
					sawData = true
					h.Cancel()
				}
			case ev.Finished != nil:
				fin = ev.Finished
			}
		case <-timeout:
			t.Fatal("no finished event after cancel")
		}
	}
	r.True(sawData)
	r.Error(fin.Err)
	r.False(Retryable(fin.Err))
}

func TestRetryableClassification(t *testing.T) {
	r := require.New(t)
	r.False(Retryable(nil))
	r.False(Retryable(ErrNotFound))
	r.False(Retryable(fmt.Errorf("status 404: %w", ErrNotFound)))
	r.False(Retryable(ErrBadStatus))
	r.False(Retryable(ErrRangeUnsupported))
	r.False(Retryable(context.Canceled))
	r.False(Retryable(context.DeadlineExceeded))
	r.False(Retryable(Fatal(errors.New("malformed request"))))
	r.True(Retryable(errors.New("connection reset by peer")))
	r.True(Retryable(io.ErrUnexpectedEOF))
}

func TestParseContentRange(t *testing.T) {
	r := require.New(t)
	r.Equal(int64(1000), parseContentRange("bytes 100-999/1000"))
	r.Equal(int64(0), parseContentRange("bytes 100-999/*"))
	r.Equal(int64(0), parseContentRange(""))
	r.Equal(int64(0), parseContentRange("junk"))
}
