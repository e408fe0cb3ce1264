// Package sched implements the Coordinator: the single-flight scheduler that
// owns every delivery trigger. Timers, reachability changes, lifecycle
// transitions, push events, and background-refresh opportunities all funnel
// through one gate, so at most one pass is ever in flight with at most one
// rerun queued behind it.
package sched

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"sol/pkg/delivery"

	"github.com/fsnotify/fsnotify"
)

// Reason identifies what triggered a pass.
type Reason string

// Trigger reason constants.
const (
	ReasonAppStart          Reason = "app_start"
	ReasonEnqueue           Reason = "enqueue"
	ReasonRetry             Reason = "retry"
	ReasonTick              Reason = "tick"
	ReasonReachability      Reason = "reachability_regained"
	ReasonResignActive      Reason = "resign_active"
	ReasonBecomeActive      Reason = "become_active"
	ReasonBackgroundRefresh Reason = "background_refresh"
	ReasonPushResolved      Reason = "push_resolved"
	ReasonStoreChanged      Reason = "store_changed"
	ReasonRerun             Reason = "rerun"
)

// passOrders is the static trigger policy: triggers that introduce fresh
// work flush the queue first; everything else checks pending work before
// sending anything new.
var passOrders = map[Reason]delivery.PassOrder{
	ReasonEnqueue:           delivery.SendFirst,
	ReasonRetry:             delivery.SendFirst,
	ReasonResignActive:      delivery.SendFirst,
	ReasonBackgroundRefresh: delivery.SendFirst,
	ReasonStoreChanged:      delivery.SendFirst,
}

// OrderFor returns the pass order for a trigger reason.
func OrderFor(r Reason) delivery.PassOrder {
	if o, ok := passOrders[r]; ok {
		return o
	}
	return delivery.PollFirst
}

// PassRunner is the slice of the delivery engine the coordinator drives.
// Production impl is *delivery.Engine.
type PassRunner interface {
	RunPass(ctx context.Context, order delivery.PassOrder) error
	PollResolved(ctx context.Context, correlationID string) error
}

// Guard wraps a pass in a best-effort extended-execution token so the host
// OS does not suspend the process mid-pass. Production impl is
// platform-specific; NoopGuard is used where no such facility exists.
type Guard interface {
	Begin(reason string) (end func())
}

// NoopGuard is a Guard that does nothing.
type NoopGuard struct{}

// Begin implements Guard.
func (NoopGuard) Begin(string) func() { return func() {} }

// Config holds Coordinator configuration.
type Config struct {
	TickInterval time.Duration // periodic pass cadence (default 5s)
	DBPath       string        // store path; its directory is watched for external writes
	Guard        Guard         // optional; NoopGuard if nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.TickInterval == 0 {
		out.TickInterval = 5 * time.Second
	}
	if out.Guard == nil {
		out.Guard = NoopGuard{}
	}
	return out
}

// Coordinator is the single-flight scheduler.
type Coordinator struct {
	cfg        Config
	engine     PassRunner
	serializer *delivery.Serializer

	mu           sync.Mutex
	isProcessing bool
	needsRerun   bool
	resolved     []string // correlation ids awaiting a targeted poll
	ctx          context.Context
	passes       sync.WaitGroup
}

// New creates a Coordinator. It is inert until Run is called.
func New(cfg Config, engine PassRunner, ser *delivery.Serializer) *Coordinator {
	return &Coordinator{
		cfg:        cfg.withDefaults(),
		engine:     engine,
		serializer: ser,
		ctx:        context.Background(),
	}
}

// Run starts the trigger sources and blocks until ctx is cancelled:
//  1. the serializer worker
//  2. the periodic tick
//  3. an fsnotify watch on the store's directory, catching enqueues by
//     other processes; the tick doubles as its safety net
//
// An initial app-start kick runs before the loops begin.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	go c.serializer.Run(ctx)

	c.Kick(ReasonAppStart)

	go c.tickLoop(ctx)
	go c.watchLoop(ctx)

	<-ctx.Done()
	c.passes.Wait()
	return ctx.Err()
}

// Kick requests a pass for the given trigger. If a pass is already in
// flight, the request coalesces into a single queued rerun and Kick returns
// immediately. Kick never blocks on the pass itself.
func (c *Coordinator) Kick(reason Reason) {
	c.mu.Lock()
	if c.isProcessing {
		c.needsRerun = true
		c.mu.Unlock()
		return
	}
	c.isProcessing = true
	ctx := c.ctx
	c.passes.Add(1)
	c.mu.Unlock()

	go c.runPass(ctx, reason)
}

// ResolvePush records a push-resolved correlation id and kicks a pass that
// polls it ahead of the sweep.
func (c *Coordinator) ResolvePush(correlationID string) {
	c.mu.Lock()
	c.resolved = append(c.resolved, correlationID)
	c.mu.Unlock()
	c.Kick(ReasonPushResolved)
}

// runPass executes one pass inside the execution guard, then releases the
// single-flight gate and honors a queued rerun.
func (c *Coordinator) runPass(ctx context.Context, reason Reason) {
	defer c.passes.Done()

	end := c.cfg.Guard.Begin(string(reason))
	targets := c.drainResolved()
	order := OrderFor(reason)

	// Pass failures are not propagated: every delivery failure is already a
	// ledger entry, and scheduler-level errors only mean the next trigger
	// retries the sweep.
	_ = c.serializer.Do(ctx, func(ctx context.Context) error {
		for _, corr := range targets {
			if err := c.engine.PollResolved(ctx, corr); err != nil {
				return err
			}
		}
		return c.engine.RunPass(ctx, order)
	})
	end()

	c.mu.Lock()
	c.isProcessing = false
	rerun := c.needsRerun
	c.needsRerun = false
	c.mu.Unlock()

	if rerun && ctx.Err() == nil {
		c.Kick(ReasonRerun)
	}
}

func (c *Coordinator) drainResolved() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.resolved
	c.resolved = nil
	return out
}

// tickLoop is the periodic trigger.
func (c *Coordinator) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Kick(ReasonTick)
		}
	}
}

// watchLoop kicks a pass when another process writes the store. If the
// watch cannot be established the tick loop alone carries the cadence.
func (c *Coordinator) watchLoop(ctx context.Context) {
	if c.cfg.DBPath == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(c.cfg.DBPath)); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.Events:
			c.Kick(ReasonStoreChanged)
		case <-watcher.Errors:
		}
	}
}
