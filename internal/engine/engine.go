// Package engine orchestrates reconciliation between the local tracker,
// the markdown mirror, and the remote tracker. It owns the
// idle/syncing/error state machine per installation, serializes work on
// each logical issue, and schedules full passes.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/zulandar/switchyard/internal/config"
	"github.com/zulandar/switchyard/internal/convention"
	"github.com/zulandar/switchyard/internal/github"
	"github.com/zulandar/switchyard/internal/mirror"
	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/notify"
	"github.com/zulandar/switchyard/internal/store"
	"github.com/zulandar/switchyard/internal/tracker"
)

// RemoteAPI is the remote tracker surface the engine needs. The concrete
// implementation is github.Client; tests inject a mock.
type RemoteAPI interface {
	Get(ctx context.Context, number int) (*github.RemoteIssue, error)
	List(ctx context.Context, state string) ([]*github.RemoteIssue, error)
	Create(ctx context.Context, req github.CreateRequest) (*github.RemoteIssue, error)
	Update(ctx context.Context, number int, req github.UpdateRequest) (*github.RemoteIssue, error)
}

// RemoteFactory builds a RemoteAPI for one installation.
type RemoteFactory func(ctx context.Context, owner, repo, token string) RemoteAPI

// Engine coordinates all reconciliation work.
type Engine struct {
	cfg      *config.Config
	store    *store.Store
	tracker  *tracker.Tracker
	mirror   *mirror.Mirror
	watcher  *mirror.Watcher
	notifier notify.Notifier
	remotes  RemoteFactory

	mu     sync.Mutex
	locks  map[string]*sync.Mutex      // per logical issue
	convs  map[uint]*convention.Config // per installation, immutable once built
	remote map[uint]RemoteAPI          // per installation, built lazily

	// wg tracks in-flight passes so Run can let them complete on shutdown.
	wg sync.WaitGroup
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	Config   *config.Config
	Store    *store.Store
	Tracker  *tracker.Tracker
	Mirror   *mirror.Mirror
	Watcher  *mirror.Watcher  // optional; suppresses echo of engine writes
	Notifier notify.Notifier  // defaults to notify.Nop
	Remotes  RemoteFactory    // defaults to the GitHub client
}

// New creates an Engine.
func New(opts Opts) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if opts.Store == nil || opts.Tracker == nil || opts.Mirror == nil {
		return nil, fmt.Errorf("engine: store, tracker, and mirror are required")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	remotes := opts.Remotes
	if remotes == nil {
		remotes = func(ctx context.Context, owner, repo, token string) RemoteAPI {
			return github.NewClient(ctx, owner, repo, token)
		}
	}
	return &Engine{
		cfg:      opts.Config,
		store:    opts.Store,
		tracker:  opts.Tracker,
		mirror:   opts.Mirror,
		watcher:  opts.Watcher,
		notifier: notifier,
		remotes:  remotes,
		locks:    make(map[string]*sync.Mutex),
		convs:    make(map[uint]*convention.Config),
		remote:   make(map[uint]RemoteAPI),
	}, nil
}

// runtime is the resolved per-installation context for one reconciliation.
type runtime struct {
	inst   *models.Installation
	cfg    *config.InstallationConfig
	conv   *convention.Config
	remote RemoteAPI
}

// runtimeFor resolves the runtime for a repository. The convention config
// and remote client are cached per installation.
func (e *Engine) runtimeFor(ctx context.Context, owner, repo string) (*runtime, error) {
	inst, err := e.store.InstallationByRepo(owner, repo)
	if err != nil {
		return nil, err
	}
	ic := e.cfg.ByRepo(owner, repo)
	if ic == nil {
		return nil, fmt.Errorf("engine: %s/%s not present in configuration", owner, repo)
	}

	e.mu.Lock()
	conv, ok := e.convs[inst.ID]
	e.mu.Unlock()
	if !ok {
		conv, err = convention.Merge(ic.Conventions)
		if err != nil {
			return nil, fmt.Errorf("engine: %s/%s: %w", owner, repo, err)
		}
		e.mu.Lock()
		e.convs[inst.ID] = conv
		e.mu.Unlock()
	}

	e.mu.Lock()
	remote, ok := e.remote[inst.ID]
	e.mu.Unlock()
	if !ok {
		remote = e.remotes(ctx, owner, repo, ic.Token())
		e.mu.Lock()
		e.remote[inst.ID] = remote
		e.mu.Unlock()
	}

	return &runtime{inst: inst, cfg: ic, conv: conv, remote: remote}, nil
}

// lockIssue serializes reconciliation of one logical issue. The key is the
// remote number when known, the local ID otherwise; the two phases of a
// mapping's life never overlap because a mapped issue always locks by
// remote number.
func (e *Engine) lockIssue(installationID uint, key string) func() {
	e.mu.Lock()
	full := fmt.Sprintf("%d/%s", installationID, key)
	l, ok := e.locks[full]
	if !ok {
		l = &sync.Mutex{}
		e.locks[full] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Close releases the notifier connection.
func (e *Engine) Close() error {
	return e.notifier.Close()
}
