package jira

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

const (
	LogZipFilename     = "log.zip"
	LogZipSplitPrefix  = "log.z"
	MergedZipFilename  = "merged.zip"
	DownloadsFolder    = "downloads"
	DefaultOutputDir   = "merged"
	maxExtractFileSize = 4 << 30
)

var ErrUnsafeArchivePath = errors.New("archive entry escapes destination")

// splitParts returns log.z01, log.z02, ... in dir, sorted.
func splitParts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, LogZipSplitPrefix) || len(name) != len(LogZipSplitPrefix)+2 {
			continue
		}
		suffix := name[len(LogZipSplitPrefix):]
		if suffix[0] < '0' || suffix[0] > '9' || suffix[1] < '0' || suffix[1] > '9' {
			continue
		}
		parts = append(parts, filepath.Join(dir, name))
	}
	sort.Strings(parts)
	return parts, nil
}

// MergeSplitZips concatenates log.zip followed by its log.zNN parts into
// merged.zip. Without parts, log.zip is copied as is.
func MergeSplitZips(dir string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	logZip := filepath.Join(dir, LogZipFilename)
	if _, err := os.Stat(logZip); err != nil {
		return "", fmt.Errorf("%s not found in %s: %w", LogZipFilename, dir, err)
	}

	parts, err := splitParts(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list split parts: %w", err)
	}

	merged := filepath.Join(dir, MergedZipFilename)
	out, err := os.Create(merged)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", MergedZipFilename, err)
	}

	var expected int64
	for _, src := range append([]string{logZip}, parts...) {
		n, err := appendFile(out, src)
		if err != nil {
			out.Close()
			return "", err
		}
		expected += n
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", MergedZipFilename, err)
	}

	if info, err := os.Stat(merged); err == nil && info.Size() != expected {
		logger.Warn("merged archive size mismatch",
			zap.Int64("expected", expected),
			zap.Int64("actual", info.Size()))
	}

	logger.Debug("merged log archive", zap.Int("parts", len(parts)+1), zap.String("path", merged))
	return merged, nil
}

func appendFile(dst io.Writer, src string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	n, err := io.Copy(dst, in)
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return n, nil
}

// ExtractZip unpacks archive into dest and returns the number of files written.
func ExtractZip(archive, dest string) (int, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("failed to read zip archive %s: %w", archive, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dest, err)
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return written, fmt.Errorf("%w: %s", ErrUnsafeArchivePath, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read %s from archive: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}

	if _, err := io.Copy(out, io.LimitReader(rc, maxExtractFileSize)); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", target, err)
	}
	return out.Close()
}
