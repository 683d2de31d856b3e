// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reactor implements the Network Context: a single-threaded
// cooperative I/O reactor exposing post/poll_one/run and timer
// primitives.
//
// The reactor owns no threads by itself; one external thread drives it
// via Run or repeated PollOne calls. Protocols post to it from any
// thread -- Post is safe for concurrent use -- but callbacks into
// application code (including timer callbacks) only ever execute on the
// driving thread, because timers themselves post their callback onto the
// task queue rather than invoking it directly.
package reactor

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	cclog "github.com/ossia-go/ossia/pkg/log"
)

// Context is the Network Context.
type Context struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func()
	stopped  bool
	sched    gocron.Scheduler
	schedErr error
}

// New creates a Context with its own gocron-backed scheduler for timer
// primitives.
func New() *Context {
	c := &Context{}
	c.cond = sync.NewCond(&c.mu)
	sched, err := gocron.NewScheduler()
	if err != nil {
		cclog.Errorf("reactor: failed to create scheduler: %v", err)
		c.schedErr = err
	} else {
		c.sched = sched
		sched.Start()
	}
	return c
}

// Post enqueues task for execution on the driving thread, in submission
// order. Safe to call from any goroutine.
func (c *Context) Post(task func()) {
	c.mu.Lock()
	c.queue = append(c.queue, task)
	c.mu.Unlock()
	c.cond.Signal()
}

// PollOne executes at most one queued task, in submission order. Returns
// false if the queue was empty. Non-blocking.
func (c *Context) PollOne() bool {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	task := c.queue[0]
	c.queue = c.queue[1:]
	c.mu.Unlock()

	task()
	return true
}

// Run drives the reactor until ctx is cancelled or Stop is called. A
// single external thread is expected to call Run.
func (c *Context) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-done:
		}
	}()
	defer close(done)

	for {
		if c.PollOne() {
			continue
		}

		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			c.cond.Wait()
		}
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return
		}
	}
}

// Stop unblocks a pending Run/PollOne wait and marks the reactor stopped.
func (c *Context) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cond.Broadcast()

	if c.sched != nil {
		_ = c.sched.Shutdown()
	}
}

// AfterFunc schedules f to run once after d, on the driving thread (the
// job itself runs in gocron's own goroutine pool, but it only ever calls
// Post -- the callback f always executes via PollOne/Run).
func (c *Context) AfterFunc(d time.Duration, f func()) {
	if c.sched == nil {
		time.AfterFunc(d, func() { c.Post(f) })
		return
	}
	_, err := c.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(timeNowPlus(d))),
		gocron.NewTask(func() { c.Post(f) }),
	)
	if err != nil {
		cclog.Warnf("reactor: AfterFunc schedule failed, falling back to time.AfterFunc: %v", err)
		time.AfterFunc(d, func() { c.Post(f) })
	}
}

// Every schedules f to run on the driving thread every interval d, until
// the returned cancel func is called.
func (c *Context) Every(d time.Duration, f func()) (cancel func()) {
	if c.sched == nil {
		t := time.NewTicker(d)
		stop := make(chan struct{})
		go func() {
			for {
				select {
				case <-t.C:
					c.Post(f)
				case <-stop:
					t.Stop()
					return
				}
			}
		}()
		return func() { close(stop) }
	}

	job, err := c.sched.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(func() { c.Post(f) }),
	)
	if err != nil {
		cclog.Warnf("reactor: Every schedule failed: %v", err)
		return func() {}
	}
	return func() { _ = c.sched.RemoveJob(job.ID()) }
}

func timeNowPlus(d time.Duration) time.Time {
	return time.Now().Add(d)
}
