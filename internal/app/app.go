package app

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"

	"github.com/debrepod/debrepod/internal/config"
	"github.com/debrepod/debrepod/internal/repo"
	"github.com/debrepod/debrepod/internal/web"
)

// Application holds the initialized runtime components for one run of the
// repository server: the watcher, cache, creator/signer pipeline, the
// service that coordinates them, and the HTTP directory service.
type Application struct {
	Config *config.Config

	pool pond.Pool

	Cache     *repo.Cache
	Watcher   *repo.Watcher
	Creator   *repo.Creator
	Signer    *repo.Signer
	Service   *repo.Service
	Directory *web.DirectoryService
}

// New wires every component from configuration. It does not start any of
// them; call Run to bring the server up.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	mainPool := pond.NewPool(cfg.Workers.GenerateWorkers(), pond.WithContext(ctx), pond.WithoutPanicRecovery())

	cache := repo.NewCache()
	watcher := repo.NewWatcher(cfg.GetPkgrootPath())

	creator, err := repo.NewCreator(cfg, cache, mainPool, cfg.Workers.GenerateWorkers())
	if err != nil {
		return nil, fmt.Errorf("build repository creator: %w", err)
	}

	signer := repo.NewSigner(cfg, cache)
	service := repo.NewService(cfg, cache, creator, signer, watcher, mainPool)

	directory, err := web.NewDirectoryService(cfg, cache)
	if err != nil {
		return nil, fmt.Errorf("build directory service: %w", err)
	}

	return &Application{
		Config:    cfg,
		pool:      mainPool,
		Cache:     cache,
		Watcher:   watcher,
		Creator:   creator,
		Signer:    signer,
		Service:   service,
		Directory: directory,
	}, nil
}

// Run starts the repository service (which seeds the cache and starts the
// watcher) and the directory service (which starts the HTTP transport),
// then blocks until ctx is cancelled, stopping both in reverse order.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Service.Start(ctx); err != nil {
		return fmt.Errorf("start repository service: %w", err)
	}

	if err := a.Directory.Start(); err != nil {
		a.Service.Stop()
		return fmt.Errorf("start directory service: %w", err)
	}

	<-ctx.Done()

	shutdownCtx := context.Background()
	if err := a.Directory.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop directory service: %w", err)
	}
	a.Service.Stop()

	return nil
}

// Shutdown stops the worker pools backing the application. Run already
// stops the service and directory transport; Shutdown additionally drains
// the pools so callers don't need pool internals.
func (a *Application) Shutdown() {
	if a.pool != nil {
		a.pool.StopAndWait()
	}
}
