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

// Package ui centralizes terminal output styling: colors, headers, and
// progress bars. Colors are disabled automatically when stderr is not a TTY
// or when the user asks for plain output.
package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Shared color handles. Callers use them directly for inline styling.
var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors enables or disables colored output. Color is off when noColor
// is set, NO_COLOR is present in the environment, or stderr is not a TTY.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		return
	}
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section header with an underline.
func Header(title string) {
	_, _ = Bold.Fprintln(os.Stderr, title)
	fmt.Fprintln(os.Stderr, dimRule(len(title)))
}

// SubHeader prints a bold sub-section title.
func SubHeader(title string) {
	_, _ = Bold.Fprintln(os.Stderr, title)
}

// Label styles a field label for aligned key/value output.
func Label(s string) string {
	return Bold.Sprint(s)
}

// CountText styles a numeric counter.
func CountText(n int) string {
	return Cyan.Sprintf("%d", n)
}

// DimText styles secondary detail text.
func DimText(s string) string {
	return Dim.Sprint(s)
}

// Warningf prints a yellow warning line to stderr.
func Warningf(format string, args ...any) {
	_, _ = Yellow.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

// Successf prints a green confirmation line to stderr.
func Successf(format string, args ...any) {
	_, _ = Green.Fprintf(os.Stderr, format+"\n", args...)
}

func dimRule(n int) string {
	if n > 60 {
		n = 60
	}
	rule := make([]byte, n)
	for i := range rule {
		rule[i] = '-'
	}
	return Dim.Sprint(string(rule))
}

// ProgressConfig gates progress bar creation.
type ProgressConfig struct {
	// Enabled is false when quiet mode is on or stderr is not a TTY.
	Enabled bool
	// ShowBytes renders throughput in bytes rather than item counts.
	ShowBytes bool
}

// NewProgressConfig derives bar settings from the quiet flag and TTY state.
func NewProgressConfig(quiet bool) ProgressConfig {
	enabled := !quiet && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	return ProgressConfig{Enabled: enabled}
}

// NewProgressBar builds a bar for total units with the given description, or
// returns nil when progress display is disabled. Callers must tolerate nil.
func NewProgressBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65 * time.Millisecond),
	}
	if cfg.ShowBytes {
		opts = append(opts, progressbar.OptionShowBytes(true))
	}
	return progressbar.NewOptions64(total, opts...)
}
