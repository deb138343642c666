// Package session runs a single resumable file download from first
// request to committed file. A session owns one temp file, chases
// redirects, retries transient failures a bounded number of times, and
// moves the finished file into place atomically.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/tanq16/hanzo/internal/transport"
	"github.com/tanq16/hanzo/internal/utils"
)

const (
	// MaxRetries bounds immediate retries of transient failures. Redirects
	// do not consume retries.
	MaxRetries = 2
	// maxRedirects bounds how many Location answers the session chases
	// before treating the chain as a loop.
	maxRedirects = 10
)

// ProgressFunc receives absolute progress for a session, keyed by the
// original request URL. Total is 0 when unknown.
type ProgressFunc func(key string, read, total int64)

// CompleteFunc receives the final outcome for a session, keyed by the
// original request URL. It fires exactly once, and never after an abort.
type CompleteFunc func(key string, result Result)

type Config struct {
	URL        string
	OutputPath string
	Resume     bool
	Transport  transport.Transport
	Headers    map[string]string
	OnProgress ProgressFunc
	OnComplete CompleteFunc
}

// Session is a single download in flight. All event handling runs on one
// goroutine; the mutex covers the fields shared with Abort and the
// accessors.
type Session struct {
	cfg       Config
	key       string
	tempPath  string
	finalPath string
	log       zerolog.Logger

	ctx     context.Context
	aborted atomic.Bool
	done    chan struct{}

	mu     sync.Mutex
	state  State
	handle transport.Handle
	result Result
	fired  bool

	// Owned by the event loop goroutine.
	file          *os.File
	currentTarget string
	bytesWritten  int64
	retryCount    int
	redirectCount int
	writeErr      error
}

// New opens the temp file and issues the first request. An existing temp
// file is appended to when resuming, truncated otherwise. When the temp
// file cannot be opened the completion callback fires asynchronously with
// FileOpenFailed and no request is ever issued.
func New(ctx context.Context, cfg Config) *Session {
	s := &Session{
		cfg:           cfg,
		key:           cfg.URL,
		tempPath:      cfg.OutputPath + utils.TempFileSuffix,
		finalPath:     cfg.OutputPath,
		log:           utils.GetLogger("session"),
		ctx:           ctx,
		done:          make(chan struct{}),
		currentTarget: cfg.URL,
	}
	var offset int64
	if cfg.Resume {
		if info, err := os.Stat(s.tempPath); err == nil {
			offset = info.Size()
		}
	}
	mode := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}
	file, err := os.OpenFile(s.tempPath, mode, 0644)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.tempPath).Msg("Could not open temp file")
		s.state = StateFailed
		go s.complete(FileOpenFailed)
		return s
	}
	s.file = file
	s.bytesWritten = offset
	if offset > 0 {
		s.log.Debug().Str("url", cfg.URL).Int64("offset", offset).Msg("Resuming from existing temp file")
	}
	s.mu.Lock()
	s.state = StateRequesting
	s.issue()
	s.mu.Unlock()
	go s.run()
	return s
}

// Abort cancels the download. The temp file is deleted, even when it held
// resumable data, and no completion callback fires. Aborting a session
// that already reached a terminal state is a no-op.
func (s *Session) Abort() {
	s.mu.Lock()
	if s.state.Terminal() || s.handle == nil {
		s.mu.Unlock()
		return
	}
	s.aborted.Store(true)
	h := s.handle
	s.mu.Unlock()
	h.Cancel()
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result reports the completion outcome. The second return is false while
// the session is running and after an abort, since aborts complete
// without a result.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.fired
}

// issue starts a request for the current target at the current offset.
// Caller holds mu.
func (s *Session) issue() {
	s.handle = s.cfg.Transport.Issue(s.ctx, transport.Request{
		Target:  s.currentTarget,
		Headers: s.cfg.Headers,
		Offset:  s.bytesWritten,
	})
}

func (s *Session) run() {
	for {
		s.mu.Lock()
		h := s.handle
		s.mu.Unlock()
		again := false
		for ev := range h.Events() {
			switch {
			case ev.Data != nil:
				s.handleData(ev.Data)
			case ev.Progress != nil:
				s.handleProgress(ev.Progress)
			case ev.Finished != nil:
				again = s.handleFinished(ev.Finished)
			}
		}
		if !again {
			return
		}
	}
}

func (s *Session) handleData(data []byte) {
	if s.writeErr != nil || s.aborted.Load() {
		return
	}
	s.mu.Lock()
	s.state = StateStreaming
	s.mu.Unlock()
	n, err := s.file.Write(data)
	s.bytesWritten += int64(n)
	if err != nil {
		s.writeErr = err
		s.log.Error().Err(err).Str("path", s.tempPath).Msg("Write to temp file failed")
		s.mu.Lock()
		h := s.handle
		s.mu.Unlock()
		if h != nil {
			h.Cancel()
		}
	}
}

func (s *Session) handleProgress(p *transport.Progress) {
	if s.aborted.Load() || s.cfg.OnProgress == nil {
		return
	}
	s.cfg.OnProgress(s.key, p.Read, p.Total)
}

// handleFinished applies the end-of-attempt decision tree: abort wins,
// then errors with bounded retry, then redirects, then commit. Returns
// true when another request was issued and the event loop should keep
// going.
func (s *Session) handleFinished(fin *transport.Finished) bool {
	s.mu.Lock()
	s.handle = nil
	if s.aborted.Load() {
		s.state = StateAborted
		s.mu.Unlock()
		s.file.Close()
		os.Remove(s.tempPath)
		s.log.Debug().Str("url", s.key).Msg("Download aborted")
		close(s.done)
		return false
	}
	err := fin.Err
	if err == nil && s.writeErr != nil {
		err = s.writeErr
	}
	if err != nil {
		if s.writeErr == nil && transport.Retryable(err) && s.retryCount < MaxRetries {
			s.retryCount++
			s.state = StateRetrying
			s.log.Warn().Err(err).Str("url", s.currentTarget).Msgf("Retrying download (attempt %d/%d)", s.retryCount, MaxRetries)
			s.issue()
			s.mu.Unlock()
			return true
		}
		s.state = StateFailed
		s.mu.Unlock()
		return s.fail(err)
	}
	if fin.Redirect != "" {
		target, rerr := resolveRedirect(s.currentTarget, fin.Redirect)
		if rerr != nil {
			s.state = StateFailed
			s.mu.Unlock()
			return s.fail(rerr)
		}
		s.redirectCount++
		if s.redirectCount > maxRedirects {
			s.state = StateFailed
			s.mu.Unlock()
			return s.fail(fmt.Errorf("redirect chain exceeded %d hops", maxRedirects))
		}
		if terr := s.truncate(); terr != nil {
			s.state = StateFailed
			s.mu.Unlock()
			return s.fail(terr)
		}
		s.log.Debug().Str("from", s.currentTarget).Str("to", target).Msg("Following redirect")
		s.currentTarget = target
		s.state = StateRedirecting
		s.issue()
		s.mu.Unlock()
		return true
	}
	s.state = StateCommitting
	s.mu.Unlock()
	return s.commit()
}

// fail closes out an unrecoverable error. The partial temp file is kept
// for a future resume unless nothing was written to it.
func (s *Session) fail(err error) bool {
	s.file.Close()
	if s.bytesWritten == 0 {
		os.Remove(s.tempPath)
	}
	result := DownloadFailed
	if errors.Is(err, transport.ErrNotFound) {
		result = FileNotFound
	}
	s.log.Error().Err(err).Str("url", s.key).Msg("Download failed")
	s.complete(result)
	return false
}

// commit moves the finished temp file into place, replacing whatever sat
// at the final path. A rename failure means the destination is not
// writable, so the temp file is discarded rather than left behind.
func (s *Session) commit() bool {
	s.file.Sync()
	s.file.Close()
	os.Remove(s.finalPath)
	if err := os.Rename(s.tempPath, s.finalPath); err != nil {
		s.log.Error().Err(err).Str("path", s.finalPath).Msg("Could not move file into place")
		os.Remove(s.tempPath)
		s.setState(StateFailed)
		s.complete(FileLocked)
		return false
	}
	s.setState(StateDone)
	s.log.Info().Str("path", s.finalPath).Int64("size", s.bytesWritten).Msg("Download complete")
	s.complete(Ok)
	return false
}

// truncate resets the temp file so a redirected target starts clean.
func (s *Session) truncate() error {
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("error truncating temp file: %v", err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("error rewinding temp file: %v", err)
	}
	s.bytesWritten = 0
	return nil
}

// complete records the result and fires the completion callback.
func (s *Session) complete(result Result) {
	s.mu.Lock()
	s.result = result
	s.fired = true
	s.mu.Unlock()
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(s.key, result)
	}
	close(s.done)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// resolveRedirect resolves a Location value, possibly relative, against
// the target that produced it.
func resolveRedirect(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("error parsing current target: %v", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("error parsing redirect location: %v", err)
	}
	return base.ResolveReference(ref).String(), nil
}
