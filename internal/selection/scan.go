package selection

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// Work files the pipeline leaves beside sources while it runs.
const (
	RemuxTempMarker = ".remux.tmp"
	BackupSuffix    = ".bak"
	// FallbackOutputSuffix names outputs when the configured suffix would
	// make the output path equal to its source.
	FallbackOutputSuffix = ".vidshrink"
)

// ScanOptions controls which files Scan admits.
type ScanOptions struct {
	// Extensions are lowercase and dot-prefixed. Empty admits every file.
	Extensions []string
	// OutputSuffix marks files produced by earlier runs (e.g. "_comp").
	OutputSuffix string
	// Previous carries file states across a rescan.
	Previous map[string]State
}

// Scan walks root and builds a tree of its media files and directories.
// Hidden entries, intermediate remux files, backups and earlier outputs are
// left out.
func Scan(root string, opts ScanOptions) (*Tree, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			entries = append(entries, Entry{Path: path, IsDir: true})
			return nil
		}
		if !d.Type().IsRegular() || !opts.admits(path) {
			return nil
		}
		entries = append(entries, Entry{Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return Build(root, entries, opts.Previous)
}

func (o ScanOptions) admits(path string) bool {
	if IsWorkFile(path, o.OutputSuffix) {
		return false
	}
	if len(o.Extensions) == 0 {
		return true
	}
	return slices.Contains(o.Extensions, strings.ToLower(filepath.Ext(path)))
}

// IsWorkFile reports whether path is a pipeline artifact rather than a
// source: a remux intermediate, a replace backup, or an earlier output
// named with outputSuffix or FallbackOutputSuffix.
func IsWorkFile(path, outputSuffix string) bool {
	name := filepath.Base(path)
	if strings.HasSuffix(name, BackupSuffix) || strings.Contains(name, RemuxTempMarker) {
		return true
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if strings.HasSuffix(stem, FallbackOutputSuffix) {
		return true
	}
	return outputSuffix != "" && strings.HasSuffix(stem, outputSuffix)
}
