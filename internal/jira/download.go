package jira

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workflow-cli/workflow/internal/concurrent"
)

const (
	DefaultMaxConcurrent = 5
	MaxConcurrentLimit   = 20
)

var (
	ErrNoAttachments    = errors.New("no attachments found")
	ErrNoLogAttachments = errors.New("no log attachments found")
	ErrNoLogFiles       = errors.New("no log files found after download")
	ErrInvalidKey       = errors.New("invalid ticket key")
)

// ProgressFunc receives human-readable progress lines.
type ProgressFunc func(msg string)

type DownloadRequest struct {
	Key string
	// All downloads every attachment instead of only log files.
	All          bool
	OutputFolder string
	// MaxConcurrent is clamped to 1..MaxConcurrentLimit; zero means the default.
	MaxConcurrent int
	// Attachments skips the API lookup when non-nil.
	Attachments []Attachment
	Progress    ProgressFunc
}

type FailedFile struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type DownloadResult struct {
	RunID      string        `json:"run_id"`
	Key        string        `json:"key"`
	BaseDir    string        `json:"base_dir"`
	Requested  int           `json:"requested"`
	Downloaded []string      `json:"downloaded"`
	Failed     []FailedFile  `json:"failed"`
	Extracted  int           `json:"extracted"`
	Duration   time.Duration `json:"duration"`
}

// Downloader fetches ticket attachments in parallel into BaseDir/<KEY>.
type Downloader struct {
	api      API
	baseURL  string
	baseDir  string
	logger   *zap.Logger
	observer concurrent.Observer
}

type DownloaderOption func(*Downloader)

func WithDownloadLogger(l *zap.Logger) DownloaderOption {
	return func(d *Downloader) { d.logger = l }
}

func WithDownloadObserver(obs concurrent.Observer) DownloaderOption {
	return func(d *Downloader) { d.observer = obs }
}

// NewDownloader creates a Downloader. baseURL is the Jira site, used to build
// fallback attachment URLs.
func NewDownloader(api API, baseURL, baseDir string, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		api:     api,
		baseURL: baseURL,
		baseDir: baseDir,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ClampConcurrency bounds n to 1..MaxConcurrentLimit, zero selects the default.
func ClampConcurrency(n int) int {
	if n == 0 {
		return DefaultMaxConcurrent
	}
	return max(1, min(n, MaxConcurrentLimit))
}

// Download runs the whole attachment flow for one ticket. Individual file
// failures end up in DownloadResult.Failed; an error is only returned when
// the flow as a whole cannot complete, in which case the ticket directory is
// removed.
func (d *Downloader) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}

	start := time.Now()
	progress := req.Progress
	if progress == nil {
		progress = func(string) {}
	}

	result := &DownloadResult{
		RunID:      uuid.NewString(),
		Key:        req.Key,
		BaseDir:    TicketDir(d.baseDir, req.Key),
		Downloaded: []string{},
		Failed:     []FailedFile{},
	}
	log := d.logger.With(zap.String("run_id", result.RunID), zap.String("key", req.Key))

	progress("Preparing download directory...")
	downloadDir, err := prepareDownloadDir(result.BaseDir)
	if err != nil {
		return nil, err
	}

	if err := d.run(ctx, req, result, downloadDir, progress, log); err != nil {
		if rmErr := os.RemoveAll(result.BaseDir); rmErr != nil {
			log.Warn("failed to clean up after error", zap.Error(rmErr))
		}
		return nil, err
	}

	result.Duration = time.Since(start)
	log.Info("download finished",
		zap.Int("downloaded", len(result.Downloaded)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (d *Downloader) run(ctx context.Context, req DownloadRequest, result *DownloadResult, downloadDir string, progress ProgressFunc, log *zap.Logger) error {
	attachments := req.Attachments
	if attachments != nil {
		progress("Using provided attachments...")
	} else {
		progress("Fetching attachments...")
		var err error
		attachments, err = d.api.GetAttachments(ctx, req.Key)
		if err != nil {
			return fmt.Errorf("failed to get attachments from Jira: %w", err)
		}
	}
	if len(attachments) == 0 {
		return fmt.Errorf("%w for %s", ErrNoAttachments, req.Key)
	}
	for _, att := range attachments {
		log.Debug("found attachment", zap.String("filename", att.Filename))
	}

	resolver := NewURLResolver(d.baseURL, nil)
	if !req.All {
		attachments = FilterLogAttachments(attachments)
		if len(attachments) == 0 {
			return fmt.Errorf("%w for %s", ErrNoLogAttachments, req.Key)
		}
		// Fallback URLs are best effort, a lookup failure leaves only primaries.
		issue, err := d.api.GetIssue(ctx, req.Key)
		if err != nil {
			log.Debug("issue lookup for fallback URLs failed", zap.Error(err))
		}
		resolver = NewURLResolver(d.baseURL, issue)
	}
	result.Requested = len(attachments)

	if req.All {
		progress("Downloading all attachments...")
	} else {
		progress("Downloading log attachments...")
	}

	if err := d.downloadAttachments(ctx, attachments, downloadDir, resolver, ClampConcurrency(req.MaxConcurrent), result, progress, log); err != nil {
		return err
	}

	progress("Processing downloaded logs...")
	extracted, err := d.processLogs(result.BaseDir, downloadDir, req.OutputFolder, req.All)
	if err != nil {
		return err
	}
	result.Extracted = extracted
	return nil
}

func (d *Downloader) downloadAttachments(
	ctx context.Context,
	attachments []Attachment,
	downloadDir string,
	resolver *URLResolver,
	maxConcurrent int,
	result *DownloadResult,
	progress ProgressFunc,
	log *zap.Logger,
) error {
	executor, err := concurrent.New[string](maxConcurrent,
		concurrent.WithLogger(log),
		concurrent.WithObserver(d.observer))
	if err != nil {
		return err
	}

	names := uniqueFilenames(attachments)
	tasks := make([]concurrent.Task[string], 0, len(attachments))
	for i, att := range attachments {
		name := names[i]
		path := filepath.Join(downloadDir, name)
		urls := resolver.DownloadURLs(att)
		tasks = append(tasks, concurrent.NewTask(name, func(ctx context.Context) (string, error) {
			return d.tryDownload(ctx, name, path, urls, log)
		}))
	}

	results, err := executor.ExecuteWithProgress(ctx, tasks, func(r concurrent.TaskResult[string]) {
		if r.Succeeded() {
			progress("Downloaded: " + r.Name)
		} else {
			progress(fmt.Sprintf("Failed to download: %s - %s", r.Name, r.Error))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to run downloads: %w", err)
	}

	for _, r := range results.Successes() {
		result.Downloaded = append(result.Downloaded, r.Value)
	}
	for _, r := range results.Failures() {
		result.Failed = append(result.Failed, FailedFile{Filename: r.Name, Error: r.Error})
	}

	if len(result.Failed) > 0 {
		progress("")
		progress(fmt.Sprintf("  Warning: %d attachment(s) failed to download:", len(result.Failed)))
		for _, f := range result.Failed {
			progress(fmt.Sprintf("  - %s: %s", f.Filename, f.Error))
		}
	}
	return nil
}

// tryDownload walks urls in order and stops at the first success.
func (d *Downloader) tryDownload(ctx context.Context, name, path string, urls []string, log *zap.Logger) (string, error) {
	var lastErr error
	for _, u := range urls {
		if err := d.api.DownloadFile(ctx, u, path); err != nil {
			log.Debug("download attempt failed",
				zap.String("filename", name),
				zap.String("url", u),
				zap.Error(err))
			lastErr = err
			continue
		}
		return path, nil
	}
	if lastErr == nil {
		return "", fmt.Errorf("failed to download %s: no URL", name)
	}
	return "", fmt.Errorf("failed to download %s from all URLs: %w", name, lastErr)
}

func (d *Downloader) processLogs(baseDir, downloadDir, outputFolder string, all bool) (int, error) {
	if _, err := os.Stat(filepath.Join(downloadDir, LogZipFilename)); err == nil {
		merged, err := MergeSplitZips(downloadDir, d.logger)
		if err != nil {
			return 0, err
		}
		if outputFolder == "" {
			outputFolder = DefaultOutputDir
		}
		return ExtractZip(merged, filepath.Join(baseDir, outputFolder))
	}

	if all {
		return 0, nil
	}

	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", downloadDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && IsLogFile(e.Name()) {
			return 0, nil
		}
	}
	return 0, fmt.Errorf("%w: all log attachments failed to download", ErrNoLogFiles)
}

// TicketDir is the per-ticket directory under base.
func TicketDir(base, key string) string {
	return filepath.Join(base, key)
}

// prepareDownloadDir recreates <ticketDir>/downloads from scratch.
func prepareDownloadDir(ticketDir string) (string, error) {
	if err := os.RemoveAll(ticketDir); err != nil {
		return "", fmt.Errorf("failed to remove existing directory: %w", err)
	}
	downloadDir := filepath.Join(ticketDir, DownloadsFolder)
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return downloadDir, nil
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// uniqueFilenames maps each attachment to a safe local filename. Jira allows
// several attachments with the same name; later ones get a " (n)" suffix.
func uniqueFilenames(attachments []Attachment) []string {
	seen := make(map[string]bool, len(attachments))
	names := make([]string, len(attachments))
	for i, att := range attachments {
		name := filepath.Base(filepath.Clean("/" + att.Filename))
		if name == "/" || name == "." {
			name = "attachment"
			if att.ID != "" {
				name += "-" + att.ID
			}
		}

		candidate := name
		for n := 1; seen[candidate]; n++ {
			ext := filepath.Ext(name)
			candidate = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
		}
		seen[candidate] = true
		names[i] = candidate
	}
	return names
}
