// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/retrolabs/romkeeper/internal/ui"
	"github.com/retrolabs/romkeeper/pkg/progress"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

// printSummary renders the end-of-run account: inputs, processed/skipped
// counts with the per-reason breakdown, executed actions, and runtime.
func printSummary(plan *romset.ExecutionPlan, elapsed time.Duration) {
	s := plan.Summary

	fmt.Fprintln(os.Stderr)
	ui.Header("Run Summary")

	if len(s.InputRoots) == 0 {
		fmt.Fprintln(os.Stderr, "Inputs: (none specified)")
	} else {
		preview := s.InputRoots
		extra := 0
		if len(preview) > 3 {
			extra = len(preview) - 3
			preview = preview[:3]
		}
		line := strings.Join(preview, ", ")
		if extra > 0 {
			line = fmt.Sprintf("%s (+%d more)", line, extra)
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.Label("Inputs:"), line)
	}

	fmt.Fprintf(os.Stderr, "%s processed %s | skipped %s | dat unmatched %s\n",
		ui.Label("Files:"),
		ui.CountText(s.FilesProcessed),
		ui.CountText(s.FilesSkipped),
		ui.CountText(s.DatUnmatched),
	)

	if len(s.SkipBreakdown) > 0 {
		ui.SubHeader("Skips by reason:")
		for _, row := range s.SkipBreakdown {
			fmt.Fprintf(os.Stderr, "  %-16s %s\n", row.Reason, ui.CountText(row.Count))
		}
	}

	if len(plan.Steps) > 0 {
		ui.SubHeader("Actions executed:")
		for _, step := range plan.Steps {
			status := ui.Dim.Sprint(step.Status)
			if step.Status == "error" {
				status = ui.Red.Sprint(step.Status)
			}
			fmt.Fprintf(os.Stderr, "  %-9s %-5s %s\n", step.Action, status, step.Note)
		}
	}

	fmt.Fprintf(os.Stderr, "%s %s\n", ui.Label("Runtime:"), ui.DimText(elapsed.Round(time.Millisecond).String()))
}

// printDiagTimings renders the --diag per-phase durations.
func printDiagTimings(timings []progress.PhaseTiming) {
	if len(timings) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr)
	ui.SubHeader("Diag timings:")
	for _, row := range timings {
		fmt.Fprintf(os.Stderr, "  %-24s %8.2f ms\n", row.Phase, float64(row.Elapsed.Microseconds())/1000.0)
	}
}
