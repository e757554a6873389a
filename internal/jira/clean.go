package jira

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

type DirInfo struct {
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	FileCount int        `json:"file_count"`
	IsBaseDir bool       `json:"is_base_dir"`
	Key       string     `json:"key,omitempty"`
	Entries   []DirEntry `json:"entries"`
}

type CleanOptions struct {
	DryRun   bool
	ListOnly bool
}

type CleanResult struct {
	Deleted   bool     `json:"deleted"`
	DirExists bool     `json:"dir_exists"`
	DirInfo   *DirInfo `json:"dir_info,omitempty"`
	DryRun    bool     `json:"dry_run"`
	ListOnly  bool     `json:"list_only"`
}

// Cleaner removes downloaded attachment directories.
type Cleaner struct {
	baseDir string
	logger  *zap.Logger
}

func NewCleaner(baseDir string, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{baseDir: baseDir, logger: logger}
}

// Inspect describes the directory for key, or the whole base directory when
// key is empty. It returns nil when the directory does not exist.
func (c *Cleaner) Inspect(key string) (*DirInfo, error) {
	dir := c.baseDir
	if key != "" {
		if err := validateKey(key); err != nil {
			return nil, err
		}
		dir = TicketDir(c.baseDir, key)
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	info := &DirInfo{Path: dir, IsBaseDir: key == "", Key: key}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		info.Size += fi.Size()
		info.FileCount++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, e := range entries {
		entry := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if fi, err := e.Info(); err == nil && !e.IsDir() {
			entry.Size = fi.Size()
		}
		info.Entries = append(info.Entries, entry)
	}
	sort.Slice(info.Entries, func(i, j int) bool { return info.Entries[i].Name < info.Entries[j].Name })

	return info, nil
}

// Clean deletes the directory for key (or the base directory) unless
// opts asks for a dry run or a listing.
func (c *Cleaner) Clean(key string, opts CleanOptions) (*CleanResult, error) {
	result := &CleanResult{DryRun: opts.DryRun, ListOnly: opts.ListOnly}

	info, err := c.Inspect(key)
	if err != nil {
		return nil, err
	}
	if info == nil {
		c.logger.Info("directory does not exist", zap.String("key", key))
		return result, nil
	}
	result.DirExists = true
	result.DirInfo = info

	if opts.ListOnly {
		return result, nil
	}
	if opts.DryRun {
		c.logger.Info("dry run, nothing deleted",
			zap.String("path", info.Path),
			zap.Int64("size", info.Size),
			zap.Int("files", info.FileCount))
		return result, nil
	}

	if err := os.RemoveAll(info.Path); err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", info.Path, err)
	}
	result.Deleted = true
	c.logger.Info("deleted", zap.String("path", info.Path), zap.Int("files", info.FileCount))
	return result, nil
}
