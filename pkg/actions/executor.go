// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package actions

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/retrolabs/romkeeper/pkg/progress"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

// ItemBytes is one byte-progress event for a record. Per-record events are
// emitted in ascending Done order; events for distinct records interleave
// arbitrarily.
type ItemBytes struct {
	Path  string
	Done  int64
	Total int64
}

// ProgressHandle lets a worker stream byte progress for its record. Clones
// of the channel sender are handed to each worker.
type ProgressHandle struct {
	path string
	ch   chan<- ItemBytes
}

// Report publishes a progress event. Total is a hint and may be zero.
func (h *ProgressHandle) Report(done, total int64) {
	if h == nil {
		return
	}
	h.ch <- ItemBytes{Path: h.path, Done: done, Total: total}
}

type itemResult struct {
	key string
	err error
}

// workFunc is the per-record operation.
type workFunc func(rec *romset.FileRecord, handle *ProgressHandle) error

// runParallel fans work out over a bounded worker pool with two channels:
// one result per record and many progress events per record. The first
// error stops result accounting and is returned; workers already in flight
// complete and their output is drained. Nil reporter disables display.
func runParallel(action string, records []*romset.FileRecord, workers int, reporter *progress.Reporter, work workFunc) error {
	if len(records) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}

	results := make(chan itemResult)
	events := make(chan ItemBytes, 256)

	var failed atomic.Bool

	// Scheduler: one task per record, bounded by the pool; no new task
	// starts once a worker has failed. Channels close only after every
	// started worker has finished.
	go func() {
		var wg sync.WaitGroup
		sem := make(chan struct{}, workers)
		for _, rec := range records {
			rec := rec
			sem <- struct{}{}
			if failed.Load() {
				<-sem
				break
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				handle := &ProgressHandle{path: rec.Relative, ch: events}
				err := work(rec, handle)
				if err != nil {
					failed.Store(true)
				}
				results <- itemResult{key: rec.Key(), err: err}
			}()
		}
		wg.Wait()
		close(results)
		close(events)
	}()

	if reporter != nil {
		reporter.BeginAction(action, len(records))
	}

	var (
		firstErr  error
		completed int
	)
	resultsCh, eventsCh := results, events
	for resultsCh != nil || eventsCh != nil {
		select {
		case ev, ok := <-eventsCh:
			if !ok {
				eventsCh = nil
				continue
			}
			if reporter != nil {
				reporter.ItemBytes(ev.Path, ev.Done, ev.Total)
			}
		case res, ok := <-resultsCh:
			if !ok {
				resultsCh = nil
				continue
			}
			if res.err != nil {
				// First error wins; later errors are dropped.
				if firstErr == nil {
					firstErr = fmt.Errorf("%s %s: %w", action, res.key, res.err)
				}
				continue
			}
			if firstErr != nil {
				// Results after the first error are drained, not counted.
				continue
			}
			completed++
			if reporter != nil {
				reporter.AdvanceAction(completed)
			}
			if m := metricsOf(reporter); m != nil {
				m.ActionRecord(action)
			}
		}
	}

	if reporter != nil {
		reporter.FinishAction()
	}
	return firstErr
}

func metricsOf(reporter *progress.Reporter) *progress.Metrics {
	if reporter == nil {
		return nil
	}
	return reporter.Metrics()
}
