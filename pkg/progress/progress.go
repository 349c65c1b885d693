// Copyright 2025 RetroLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@retrolabs.io
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package progress renders run progress and exports run metrics. The
// Reporter is shared across the executor's workers; every method is safe
// for concurrent use.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/retrolabs/romkeeper/internal/ui"
)

// Reporter drives one bar per action and aggregates per-item byte events.
type Reporter struct {
	cfg     ui.ProgressConfig
	metrics *Metrics

	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	action    string
	itemBytes map[string]int64
	byteTotal int64

	diag      bool
	phases    []PhaseTiming
	phaseName string
	phaseFrom time.Time
}

// PhaseTiming records one diag phase duration.
type PhaseTiming struct {
	Phase   string
	Elapsed time.Duration
}

// NewReporter builds a Reporter. Pass quiet to suppress bars; diag enables
// phase-timing capture.
func NewReporter(quiet, diag bool, metrics *Metrics) *Reporter {
	return &Reporter{
		cfg:       ui.NewProgressConfig(quiet),
		metrics:   metrics,
		itemBytes: make(map[string]int64),
		diag:      diag,
	}
}

// Metrics exposes the Reporter's metrics sink (may be nil).
func (r *Reporter) Metrics() *Metrics { return r.metrics }

// BeginAction starts a new bar for the named action over total records.
func (r *Reporter) BeginAction(action string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishBarLocked()
	r.action = action
	r.itemBytes = make(map[string]int64)
	r.byteTotal = 0
	r.bar = ui.NewProgressBar(r.cfg, int64(total), fmt.Sprintf("%s (%d files)", action, total))
}

// AdvanceAction moves the action bar to done completed records.
func (r *Reporter) AdvanceAction(done int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Set(done)
	}
}

// ItemBytes records a byte-progress event for one record. Per-record events
// arrive in ascending done order; distinct records interleave arbitrarily.
func (r *Reporter) ItemBytes(path string, done, total int64) {
	r.mu.Lock()
	prev := r.itemBytes[path]
	if done > prev {
		r.byteTotal += done - prev
		r.itemBytes[path] = done
		if r.metrics != nil {
			r.metrics.AddBytesWritten(done - prev)
		}
	}
	r.mu.Unlock()
}

// FinishAction completes and clears the current bar.
func (r *Reporter) FinishAction() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishBarLocked()
	r.action = ""
}

func (r *Reporter) finishBarLocked() {
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}

// BytesWritten returns the aggregate bytes observed for the current action.
func (r *Reporter) BytesWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byteTotal
}

// BeginPhase opens a named diag phase.
func (r *Reporter) BeginPhase(name string) {
	if !r.diag {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phaseName = name
	r.phaseFrom = time.Now()
}

// EndPhase closes the current diag phase and records its duration.
func (r *Reporter) EndPhase() {
	if !r.diag {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phaseName == "" {
		return
	}
	r.phases = append(r.phases, PhaseTiming{Phase: r.phaseName, Elapsed: time.Since(r.phaseFrom)})
	r.phaseName = ""
}

// PhaseTimings returns the captured diag timings in order.
func (r *Reporter) PhaseTimings() []PhaseTiming {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PhaseTiming, len(r.phases))
	copy(out, r.phases)
	return out
}

// Finalize tears down any live bar.
func (r *Reporter) Finalize() {
	r.FinishAction()
}
