package repo

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/debrepod/debrepod/internal/config"
)

// distributionCreator is the narrow surface Service needs from Creator,
// kept as an interface so tests can substitute a fake instead of shelling
// out to dpkg-scanpackages.
type distributionCreator interface {
	Initialize() error
	Create(ctx context.Context, d string) error
}

// distributionSigner is the narrow surface Service needs from Signer.
type distributionSigner interface {
	Initialize() error
	Sign(d string) error
}

// Service is the pipeline coordinator: it seeds every configured
// distribution at startup, then drives filesystem change events through a
// per-distribution debounce timer into a creator/signer rebuild, swapping
// the cache on success.
//
// Unlike the process-cwd-bound design this is adapted from, Creator never
// touches the process working directory, so rebuilds for distinct
// distributions are allowed to run concurrently; only operations against
// the same distribution are serialized, by its cache partition lock.
type Service struct {
	cfg     *config.Config
	cache   *Cache
	creator distributionCreator
	signer  distributionSigner
	watcher *Watcher
	pool    pond.Pool

	log *slog.Logger

	mu     sync.Mutex
	timers map[string]*reusableTimer

	handler Handler
}

// NewService wires a Service from its already-constructed dependencies.
func NewService(cfg *config.Config, cache *Cache, creator *Creator, signer *Signer, watcher *Watcher, pool pond.Pool) *Service {
	return newService(cfg, cache, creator, signer, watcher, pool)
}

func newService(cfg *config.Config, cache *Cache, creator distributionCreator, signer distributionSigner, watcher *Watcher, pool pond.Pool) *Service {
	return &Service{
		cfg:     cfg,
		cache:   cache,
		creator: creator,
		signer:  signer,
		watcher: watcher,
		pool:    pool,
		log:     slog.With("component", "service"),
		timers:  make(map[string]*reusableTimer),
	}
}

// Start initializes the creator and signer, runs one synchronous rebuild
// per configured distribution to seed the cache, then registers this
// service's event handler with the watcher and starts it.
func (s *Service) Start(ctx context.Context) error {
	if err := s.creator.Initialize(); err != nil {
		return err
	}
	if err := s.signer.Initialize(); err != nil {
		return err
	}

	group := s.pool.NewGroupContext(ctx)
	for _, d := range s.cfg.Distributions {
		d := d
		group.SubmitErr(func() (any, error) {
			return nil, s.update(ctx, d)
		})
	}
	if _, err := group.Wait(); err != nil {
		return err
	}

	s.handler = func(d string) { s.handleEvent(ctx, d) }
	s.watcher.Register(s.handler)

	return s.watcher.Start()
}

// Stop deregisters from the watcher, stops it, and cancels any outstanding
// debounce timers. In-flight rebuilds are allowed to finish.
func (s *Service) Stop() {
	s.watcher.Deregister(s.handler)
	s.watcher.Stop()

	s.mu.Lock()
	timers := make([]*reusableTimer, 0, len(s.timers))
	for _, t := range s.timers {
		timers = append(timers, t)
	}
	s.timers = make(map[string]*reusableTimer)
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// handleEvent is the watcher's dispatch callback: it only touches timer
// state and must return quickly.
func (s *Service) handleEvent(ctx context.Context, d string) {
	if !slices.Contains(s.cfg.Distributions, d) {
		s.log.Warn("event for unconfigured distribution", "distribution", d)
		return
	}

	delay := time.Duration(s.cfg.TriggerDelay * float64(time.Second))

	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[d]
	if ok && timer.Alive() {
		timer.Reset(delay)
		return
	}

	s.timers[d] = newReusableTimer(delay, func() {
		if err := s.update(ctx, d); err != nil {
			s.log.Error("rebuild failed", "distribution", d, "error", err)
		}
	})
}

// update runs one full create-then-sign cycle for d under its cache
// partition lock, swapping the cache on success and discarding the
// write-side (without touching the read-side) on failure.
func (s *Service) update(ctx context.Context, d string) error {
	s.cache.Lock(d)

	if err := s.creator.Create(ctx, d); err != nil {
		s.cache.Discard(d)
		return err
	}

	if err := s.signer.Sign(d); err != nil {
		s.cache.Discard(d)
		return err
	}

	s.cache.Clear(d)
	return nil
}
