// Package catalog indexes the parquet files materialized under the data root
// and decides which of them implement a given logical table name. Matching is
// a pure function over path strings so resolution is deterministic for a
// fixed directory snapshot.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// File is one materialized parquet file under the data root.
type File struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	Modified   time.Time `json:"modified"`
	BlockRange string    `json:"block_range"`
	IsLatest   bool      `json:"is_latest"`
}

var (
	blockRangeRe    = regexp.MustCompile(`(\d+)_to_(\d+)`)
	datasetPrefixRe = regexp.MustCompile(`^([a-z_]+)_`)
)

// Scan walks root and returns every parquet file found, including files in
// the latest subtree. A missing root yields an empty catalog, not an error.
func Scan(root string) ([]File, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []File
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".parquet") {
			return nil
		}
		files = append(files, File{
			Name:       InferDataset(info.Name()),
			Path:       path,
			SizeBytes:  info.Size(),
			Modified:   info.ModTime(),
			BlockRange: inferBlockRange(info.Name()),
			IsLatest:   strings.Contains(path, "latest"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

// Paths extracts just the path column of a file list.
func Paths(files []File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// InferDataset derives the dataset name from an extraction output filename.
// The extractor names files <network>__<dataset>__<range>.parquet, or
// <dataset>__<range>.parquet without a network prefix.
func InferDataset(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if parts := strings.Split(stem, "__"); len(parts) >= 3 {
		return parts[1]
	} else if len(parts) == 2 {
		return parts[0]
	}
	if m := datasetPrefixRe.FindStringSubmatch(stem); m != nil {
		return m[1]
	}
	return stem
}

// inferBlockRange pulls the "<start>_to_<end>" tag out of a filename,
// reported as "start:end". Empty when the filename carries no range.
func inferBlockRange(filename string) string {
	m := blockRangeRe.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", m[1], m[2])
}

// MatchFiles returns the subset of pool that implements the logical table
// name. Tiers are tried most specific first and the first tier with any hit
// wins outright:
//
//	a. path contains the exact delimited marker "__<name>__"
//	b. path contains "<name>" delimited by underscores anywhere
//	c. basename begins "<name>_" or "<name>."
//
// Matching is case-insensitive; every hit within the winning tier is kept.
func MatchFiles(name string, pool []string) []string {
	needle := strings.ToLower(name)
	tiers := []func(path string) bool{
		func(p string) bool {
			return strings.Contains(p, "__"+needle+"__")
		},
		func(p string) bool {
			return strings.Contains(p, "_"+needle+"_")
		},
		func(p string) bool {
			base := filepath.Base(p)
			return strings.HasPrefix(base, needle+"_") || strings.HasPrefix(base, needle+".")
		},
	}

	for _, match := range tiers {
		var hits []string
		for _, path := range pool {
			if match(strings.ToLower(path)) {
				hits = append(hits, path)
			}
		}
		if len(hits) > 0 {
			return hits
		}
	}
	return nil
}
