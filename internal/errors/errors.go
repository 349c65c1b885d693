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

// Package errors provides the user-facing error model: every fatal error
// carries a title, a detail line, and a suggestion so the CLI can fail with
// something actionable instead of a bare stack of wrapped messages.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Kind classifies a UserError for exit codes and reporting.
type Kind string

const (
	KindConfig   Kind = "config-error"
	KindIO       Kind = "io-error"
	KindNetwork  Kind = "network-error"
	KindCache    Kind = "cache-error"
	KindFormat   Kind = "format-error"
	KindInternal Kind = "internal-error"
)

// UserError is an error with presentation metadata.
type UserError struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Err        error  `json:"-"`
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

func (e *UserError) Unwrap() error { return e.Err }

func newError(kind Kind, title, detail, suggestion string, err error) *UserError {
	return &UserError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

// NewConfigError reports an invalid flag combination or unusable config.
func NewConfigError(title, detail, suggestion string, err error) *UserError {
	return newError(KindConfig, title, detail, suggestion, err)
}

// NewIOError reports a filesystem operation failure.
func NewIOError(title, detail, suggestion string, err error) *UserError {
	return newError(KindIO, title, detail, suggestion, err)
}

// NewNetworkError reports an online lookup failure.
func NewNetworkError(title, detail, suggestion string, err error) *UserError {
	return newError(KindNetwork, title, detail, suggestion, err)
}

// NewCacheError reports a cache database failure.
func NewCacheError(title, detail, suggestion string, err error) *UserError {
	return newError(KindCache, title, detail, suggestion, err)
}

// NewFormatError reports a malformed archive or encoding failure.
func NewFormatError(title, detail, suggestion string, err error) *UserError {
	return newError(KindFormat, title, detail, suggestion, err)
}

// NewInternalError reports a bug.
func NewInternalError(title, detail, suggestion string, err error) *UserError {
	return newError(KindInternal, title, detail, suggestion, err)
}

// ExitCode maps an error to the process exit status. Config errors exit 2 so
// scripts can distinguish usage mistakes from runtime failures.
func ExitCode(err error) int {
	var ue *UserError
	if errors.As(err, &ue) && ue.Kind == KindConfig {
		return 2
	}
	return 1
}

// FatalError prints err (as JSON when jsonOutput is set) and exits.
func FatalError(err error, jsonOutput bool) {
	var ue *UserError
	if !errors.As(err, &ue) {
		ue = NewInternalError("Unexpected error", err.Error(), "", err)
	}

	if jsonOutput {
		payload := map[string]string{
			"kind":  string(ue.Kind),
			"title": ue.Title,
		}
		if ue.Detail != "" {
			payload["detail"] = ue.Detail
		}
		if ue.Suggestion != "" {
			payload["suggestion"] = ue.Suggestion
		}
		if ue.Err != nil {
			payload["cause"] = ue.Err.Error()
		}
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(payload)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", ue.Title)
		if ue.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ue.Detail)
		}
		if ue.Err != nil {
			fmt.Fprintf(os.Stderr, "  cause: %v\n", ue.Err)
		}
		if ue.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", ue.Suggestion)
		}
	}

	os.Exit(ExitCode(ue))
}
