package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/voyagen/mbient/internal/fetcher"
	"github.com/voyagen/mbient/internal/logger"
	"github.com/voyagen/mbient/internal/models"
)

var (
	// ErrMalformedSourceURL is returned when the playlist URL is not an absolute URL. No fetch is made.
	ErrMalformedSourceURL = errors.New("malformed source url")
	// ErrFetchFailed covers network errors, non-2xx responses and bodies that are not valid UTF-8.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrSuperseded is returned by a load whose result was discarded because a newer load was started.
	ErrSuperseded = errors.New("load superseded by a newer load")
)

// Observer receives every published snapshot, in publication order.
// Observers run synchronously on the publishing goroutine and must not call Load.
type Observer func(models.Snapshot)

// PlaylistIngestor fetches playlists and publishes their parsed channels.
// The most recently started Load owns the result; older loads are cancelled
// and whatever they produce is discarded.
type PlaylistIngestor struct {
	fetcher fetcher.Fetcher
	parser  fetcher.Parser
	log     logger.Logger
	now     func() time.Time

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	snapshot   models.Snapshot
	observers  map[int]Observer
	nextObsID  int

	// publishMu serializes swap+notify so observers never see an older generation after a newer one.
	publishMu sync.Mutex
}

// Option configures a PlaylistIngestor.
type Option func(*PlaylistIngestor)

// WithLogger sets the logger. The default is logger.Default.
func WithLogger(l logger.Logger) Option {
	return func(p *PlaylistIngestor) { p.log = l }
}

// WithClock overrides time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *PlaylistIngestor) { p.now = now }
}

// NewPlaylistIngestor creates an ingestor with an empty result.
func NewPlaylistIngestor(f fetcher.Fetcher, parser fetcher.Parser, opts ...Option) *PlaylistIngestor {
	p := &PlaylistIngestor{
		fetcher:   f,
		parser:    parser,
		log:       logger.Default,
		now:       time.Now,
		snapshot:  models.Snapshot{Channels: []models.Channel{}, Complete: true},
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses playlist text with the ingestor's parser. It does not touch the published result.
func (p *PlaylistIngestor) Parse(text string) []models.Channel {
	return p.parser.Parse(text)
}

// Snapshot returns the current result. The returned slice is a copy.
func (p *PlaylistIngestor) Snapshot() models.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copySnapshot(p.snapshot)
}

// Subscribe registers fn for future snapshots and returns a function that removes it.
func (p *PlaylistIngestor) Subscribe(fn Observer) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextObsID
	p.nextObsID++
	p.observers[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
}

// Load fetches rawURL and replaces the current result with its channels.
// On any error the current result is left unchanged.
func (p *PlaylistIngestor) Load(ctx context.Context, rawURL string) error {
	if err := validateSourceURL(rawURL); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := p.begin(cancel)

	p.log.Debugf("playlist[%d]: fetching %s", gen, rawURL)
	body, err := p.fetcher.FetchText(ctx, rawURL)
	if err != nil {
		if !p.isCurrent(gen) {
			return ErrSuperseded
		}
		p.log.Warnf("playlist[%d]: fetch %s: %v", gen, rawURL, err)
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if !utf8.Valid(body) {
		if !p.isCurrent(gen) {
			return ErrSuperseded
		}
		p.log.Warnf("playlist[%d]: %s: body is not valid UTF-8", gen, rawURL)
		return fmt.Errorf("%w: body is not valid UTF-8", ErrFetchFailed)
	}

	channels, err := p.parser.ParseReader(bytes.NewReader(body))
	if err != nil {
		// Unreachable with a bytes.Reader.
		if !p.isCurrent(gen) {
			return ErrSuperseded
		}
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if channels == nil {
		channels = []models.Channel{}
	}

	if !p.publish(gen, rawURL, channels) {
		p.log.Debugf("playlist[%d]: result for %s discarded", gen, rawURL)
		return ErrSuperseded
	}
	p.log.Logf("playlist[%d]: loaded %d channels from %s", gen, len(channels), rawURL)
	return nil
}

// begin takes a new generation token and cancels the load it supersedes.
func (p *PlaylistIngestor) begin(cancel context.CancelFunc) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	p.cancel = cancel
	return p.generation
}

func (p *PlaylistIngestor) isCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.generation
}

// publish swaps in the new result if gen is still current, then notifies
// observers with the cleared snapshot followed by the filled one.
func (p *PlaylistIngestor) publish(gen uint64, source string, channels []models.Channel) bool {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return false
	}
	now := p.now()
	p.snapshot = models.Snapshot{
		Generation: gen,
		SourceURL:  source,
		Channels:   channels,
		Complete:   true,
		UpdatedAt:  now,
	}
	p.cancel = nil
	filled := copySnapshot(p.snapshot)
	observers := make([]Observer, 0, len(p.observers))
	for _, o := range p.observers {
		observers = append(observers, o)
	}
	p.mu.Unlock()

	cleared := models.Snapshot{
		Generation: gen,
		SourceURL:  source,
		Channels:   []models.Channel{},
		UpdatedAt:  now,
	}
	for _, o := range observers {
		o(cleared)
	}
	for _, o := range observers {
		o(copySnapshot(filled))
	}
	return true
}

func validateSourceURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrMalformedSourceURL, rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute URL", ErrMalformedSourceURL, rawURL)
	}
	return nil
}

func copySnapshot(s models.Snapshot) models.Snapshot {
	out := s
	out.Channels = make([]models.Channel, len(s.Channels))
	copy(out.Channels, s.Channels)
	return out
}
