// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package actions

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/console"
	"github.com/retrolabs/romkeeper/pkg/romset"
	"github.com/retrolabs/romkeeper/pkg/torrentzip"
)

const copyBufSize = 1 << 20

// copyFileWithProgress streams src to dest in chunks, reporting cumulative
// bytes after every chunk.
func copyFileWithProgress(src, dest string, handle *ProgressHandle) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	total := int64(0)
	if st, err := in.Stat(); err == nil {
		total = st.Size()
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	buf := make([]byte, copyBufSize)
	var written int64
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				_ = out.Close()
				return fmt.Errorf("writing %s: %w", dest, err)
			}
			written += int64(n)
			handle.Report(written, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			return fmt.Errorf("reading %s: %w", src, readErr)
		}
	}
	return out.Close()
}

// copyRecord copies one record into the output tree. An existing target is
// left alone unless overwrite is enabled.
func copyRecord(rec *romset.FileRecord, cfg *config.Config, dats []romset.DatRom, handle *ProgressHandle) (string, error) {
	target := ResolveOutputPath(rec, cfg, dats)
	if err := ensureParent(target); err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err == nil && !cfg.Overwrite {
		return target, nil
	}
	if err := copyFileWithProgress(rec.Source, target, handle); err != nil {
		return "", err
	}
	return target, nil
}

// moveRecord renames the record into place, falling back to copy+delete on
// cross-device errors, then optionally prunes the emptied source parent.
func moveRecord(rec *romset.FileRecord, cfg *config.Config, dats []romset.DatRom, handle *ProgressHandle) (string, error) {
	target := ResolveOutputPath(rec, cfg, dats)
	if err := ensureParent(target); err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err == nil && !cfg.Overwrite {
		return target, nil
	}

	if err := os.Rename(rec.Source, target); err != nil {
		if err := copyFileWithProgress(rec.Source, target, handle); err != nil {
			return "", err
		}
		if err := os.Remove(rec.Source); err != nil {
			return "", fmt.Errorf("removing source after move fallback %s: %w", rec.Source, err)
		}
	} else {
		handle.Report(rec.Size, rec.Size)
	}

	if cfg.MoveDeleteDirs {
		// Best effort; fails silently when the directory is not empty.
		_ = os.Remove(filepath.Dir(rec.Source))
	}
	return target, nil
}

// linkRecord materializes the record as a hardlink, symlink, or copy
// (reflink fallback).
func linkRecord(rec *romset.FileRecord, cfg *config.Config, dats []romset.DatRom, handle *ProgressHandle) (string, error) {
	target := ResolveOutputPath(rec, cfg, dats)
	if err := ensureParent(target); err != nil {
		return "", err
	}

	switch cfg.LinkMode {
	case config.LinkHardlink:
		if _, err := os.Lstat(target); err == nil {
			if err := os.Remove(target); err != nil {
				return "", err
			}
		}
		if err := os.Link(rec.Source, target); err != nil {
			return "", err
		}
	case config.LinkSymlink:
		if _, err := os.Lstat(target); err == nil {
			if err := os.Remove(target); err != nil {
				return "", err
			}
		}
		src := rec.Source
		if cfg.SymlinkRelative {
			if rel, err := filepath.Rel(filepath.Dir(target), rec.Source); err == nil {
				src = rel
			}
		}
		if err := os.Symlink(src, target); err != nil {
			return "", err
		}
	case config.LinkReflink:
		if err := copyFileWithProgress(rec.Source, target, handle); err != nil {
			return "", err
		}
	}

	if rec.Size > 0 {
		handle.Report(rec.Size, rec.Size)
	} else {
		handle.Report(1, 1)
	}
	return target, nil
}

// externalArchiveSuffixes are handed to the external extractor.
var externalArchiveSuffixes = []string{
	".7z", ".rar", ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz", ".tbz2",
	".tar.xz", ".txz", ".tar.zst", ".tzst", ".tar.lz", ".tar.lzma", ".tlz",
}

func looksLikeExternalArchive(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, suffix := range externalArchiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// isExtractableArchive reports whether the extract action applies.
func isExtractableArchive(rec *romset.FileRecord) bool {
	return strings.EqualFold(filepath.Ext(rec.Source), ".zip") || looksLikeExternalArchive(rec.Source)
}

// extractRecord expands an archive into the output tree: zip entries
// directly, external formats via a shell-invoked 7z, anything else as a
// plain copy-through.
func extractRecord(rec *romset.FileRecord, cfg *config.Config, dats []romset.DatRom, handle *ProgressHandle) ([]string, error) {
	if strings.EqualFold(filepath.Ext(rec.Source), ".zip") {
		written, ok, err := extractZip(rec, cfg, dats, handle)
		if err != nil {
			return nil, err
		}
		if ok {
			return written, nil
		}
	}
	if looksLikeExternalArchive(rec.Source) {
		written, ok, err := extractWith7z(rec, cfg, dats, handle)
		if err != nil {
			return nil, err
		}
		if ok {
			return written, nil
		}
	}
	target, err := copyRecord(rec, cfg, dats, handle)
	if err != nil {
		return nil, err
	}
	return []string{target}, nil
}

// extractZip expands a .zip record. ok is false when the file is not
// actually a zip archive (the caller falls through).
func extractZip(rec *romset.FileRecord, cfg *config.Config, dats []romset.DatRom, handle *ProgressHandle) ([]string, bool, error) {
	zr, err := zip.OpenReader(rec.Source)
	if err != nil {
		return nil, false, nil
	}
	defer zr.Close()

	var (
		written   []string
		aggregate int64
	)
	buf := make([]byte, copyBufSize)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entryRec := &romset.FileRecord{
			Source:   rec.Source,
			Relative: f.Name,
			Size:     int64(f.UncompressedSize64),
		}
		target := ResolveOutputPath(entryRec, cfg, dats)
		if err := ensureParent(target); err != nil {
			return nil, true, err
		}

		rc, err := f.Open()
		if err != nil {
			return nil, true, fmt.Errorf("opening entry %s: %w", f.Name, err)
		}
		out, err := os.Create(target)
		if err != nil {
			_ = rc.Close()
			return nil, true, err
		}
		for {
			n, readErr := rc.Read(buf)
			if n > 0 {
				if _, err := out.Write(buf[:n]); err != nil {
					_ = rc.Close()
					_ = out.Close()
					return nil, true, err
				}
				aggregate += int64(n)
				handle.Report(aggregate, rec.Size)
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				_ = rc.Close()
				_ = out.Close()
				return nil, true, readErr
			}
		}
		_ = rc.Close()
		if err := out.Close(); err != nil {
			return nil, true, err
		}
		written = append(written, target)
	}
	return written, true, nil
}

// extractWith7z shells out to 7z into a temp dir, then copies the results
// into the output tree. ok is false when no extractor is on PATH.
func extractWith7z(rec *romset.FileRecord, cfg *config.Config, dats []romset.DatRom, handle *ProgressHandle) ([]string, bool, error) {
	exe, err := exec.LookPath("7z")
	if err != nil {
		exe, err = exec.LookPath("7za")
	}
	if err != nil {
		return nil, false, nil
	}

	tmp, err := os.MkdirTemp("", "romkeeper-extract-*")
	if err != nil {
		return nil, true, err
	}
	defer os.RemoveAll(tmp)

	cmd := exec.Command(exe, "x", rec.Source, "-o"+tmp, "-y")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return nil, true, fmt.Errorf("extracting %s via %s: %w", rec.Source, exe, err)
	}

	var (
		written   []string
		aggregate int64
	)
	err = filepath.WalkDir(tmp, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(tmp, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		st, statErr := d.Info()
		var size int64
		if statErr == nil {
			size = st.Size()
		}
		entryRec := &romset.FileRecord{Source: rec.Source, Relative: rel, Size: size}
		target := ResolveOutputPath(entryRec, cfg, dats)
		if err := ensureParent(target); err != nil {
			return err
		}
		if err := copyFileWithProgress(path, target, nil); err != nil {
			return err
		}
		aggregate += size
		handle.Report(aggregate, rec.Size)
		written = append(written, target)
		return nil
	})
	if err != nil {
		return nil, true, err
	}
	return written, true, nil
}

// shouldZip gates the zip action on cartridge classification.
func shouldZip(rec *romset.FileRecord, dats []romset.DatRom) bool {
	return console.IsCartridgeBased(rec, dats)
}

func zipFormatFor(cfg *config.Config) torrentzip.Format {
	switch cfg.ZipFormat {
	case config.ZipRvzstd:
		return torrentzip.FormatRvzstd
	case config.ZipDeflate:
		return torrentzip.FormatDeflate
	}
	return torrentzip.FormatTorrentzip
}

// zipRecord builds a deterministic archive for one cartridge record and
// removes any raw (non-zipped) output left from earlier actions.
func zipRecord(rec *romset.FileRecord, cfg *config.Config, dats []romset.DatRom, handle *ProgressHandle) (string, error) {
	raw := ResolveOutputPath(rec, cfg, dats)
	target := strings.TrimSuffix(raw, filepath.Ext(raw)) + ".zip"
	if err := ensureParent(target); err != nil {
		return "", err
	}

	entries := []torrentzip.SourceEntry{{Path: rec.Source, Name: rec.BaseName()}}
	err := torrentzip.WriteArchive(entries, target, zipFormatFor(cfg), func(done, total int64) {
		handle.Report(done, total)
	})
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(raw); err == nil {
		if err := os.Remove(raw); err != nil {
			return "", fmt.Errorf("removing unzipped output %s: %w", raw, err)
		}
	}
	return target, nil
}
