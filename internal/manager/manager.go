// Package manager starts download sessions, enforces one active download
// per URL, and routes each URL scheme to its transport.
package manager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tanq16/hanzo/internal/session"
	"github.com/tanq16/hanzo/internal/transport"
	"github.com/tanq16/hanzo/internal/utils"
)

var (
	ErrDownloadActive    = errors.New("download already active for this URL")
	ErrUnsupportedScheme = errors.New("no transport registered for scheme")
)

type StartRequest struct {
	URL        string
	OutputPath string
	Resume     bool
	OnProgress session.ProgressFunc
	OnComplete session.CompleteFunc
}

// Download is a tracked session with a unique id for logging.
type Download struct {
	ID   string
	Key  string
	sess *session.Session
}

func (d *Download) Done() <-chan struct{} { return d.sess.Done() }

func (d *Download) Result() (session.Result, bool) { return d.sess.Result() }

func (d *Download) State() session.State { return d.sess.State() }

type Manager struct {
	headers    map[string]string
	log        zerolog.Logger
	mu         sync.Mutex
	transports map[string]transport.Transport
	active     map[string]*Download
	wg         sync.WaitGroup
}

// New creates a manager. The headers are sent with every request of every
// download it starts.
func New(headers map[string]string) *Manager {
	return &Manager{
		headers:    headers,
		log:        utils.GetLogger("manager"),
		transports: make(map[string]transport.Transport),
		active:     make(map[string]*Download),
	}
}

func (m *Manager) RegisterTransport(scheme string, t transport.Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[scheme] = t
}

// Start begins a download for a URL. At most one download per URL may be
// active at a time; a second Start for the same URL fails with
// ErrDownloadActive until the first finishes.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Download, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if req.OutputPath == "" {
		return nil, fmt.Errorf("output path required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transports[parsed.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}
	if _, exists := m.active[req.URL]; exists {
		return nil, ErrDownloadActive
	}
	d := &Download{
		ID:  uuid.New().String(),
		Key: req.URL,
	}
	d.sess = session.New(ctx, session.Config{
		URL:        req.URL,
		OutputPath: req.OutputPath,
		Resume:     req.Resume,
		Transport:  t,
		Headers:    m.headers,
		OnProgress: req.OnProgress,
		OnComplete: req.OnComplete,
	})
	m.active[req.URL] = d
	m.wg.Add(1)
	go m.reap(d)
	m.log.Debug().Str("id", d.ID).Str("url", req.URL).Str("output", req.OutputPath).Msg("Download started")
	return d, nil
}

func (m *Manager) reap(d *Download) {
	defer m.wg.Done()
	<-d.sess.Done()
	m.mu.Lock()
	delete(m.active, d.Key)
	m.mu.Unlock()
	if result, ok := d.sess.Result(); ok {
		m.log.Debug().Str("id", d.ID).Str("result", result.String()).Msg("Download finished")
	} else {
		m.log.Debug().Str("id", d.ID).Msg("Download aborted")
	}
}

// Cancel aborts the active download for a URL, reporting whether one was
// found.
func (m *Manager) Cancel(rawURL string) bool {
	m.mu.Lock()
	d, ok := m.active[rawURL]
	m.mu.Unlock()
	if !ok {
		return false
	}
	d.sess.Abort()
	return true
}

// CancelAll aborts every active download.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	downloads := make([]*Download, 0, len(m.active))
	for _, d := range m.active {
		downloads = append(downloads, d)
	}
	m.mu.Unlock()
	for _, d := range downloads {
		d.sess.Abort()
	}
}

// Active lists the URLs of downloads still in flight.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.active))
	for k := range m.active {
		keys = append(keys, k)
	}
	return keys
}

// Wait blocks until every started download has finished or aborted.
func (m *Manager) Wait() {
	m.wg.Wait()
}
