package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/workflow-cli/workflow/internal/cli"
	"github.com/workflow-cli/workflow/internal/git"
	"github.com/workflow-cli/workflow/internal/jira"
	"github.com/workflow-cli/workflow/internal/logger"
	"github.com/workflow-cli/workflow/internal/metrics"
)

var (
	downloadAll   bool
	maxConcurrent int
	outputFolder  string
	outputFormat  string
	outputFile    string
	showProgress  bool

	cleanDryRun bool
	cleanList   bool
	cleanYes    bool
)

var jiraCmd = &cobra.Command{
	Use:   "jira",
	Short: "Jira ticket helpers",
}

var downloadCmd = &cobra.Command{
	Use:   "download [KEY]",
	Short: "Download ticket attachments",
	Long: `Download the log attachments of a Jira ticket, merge split log archives and extract them.
When KEY is omitted it is taken from the current git branch name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

var attachmentsCmd = &cobra.Command{
	Use:   "attachments KEY",
	Short: "List ticket attachments",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttachments,
}

var cleanCmd = &cobra.Command{
	Use:   "clean [KEY]",
	Short: "Remove downloaded attachments",
	Long:  `Remove the download directory of a ticket, or of every ticket when KEY is omitted.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClean,
}

func init() {
	downloadCmd.Flags().BoolVarP(&downloadAll, "all", "a", false, "Download all attachments, not only logs")
	downloadCmd.Flags().IntVarP(&maxConcurrent, "concurrent", "j", 0, "Maximum concurrent downloads (1-20)")
	downloadCmd.Flags().StringVar(&outputFolder, "output-folder", "", "Folder name for extracted logs")
	downloadCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json, csv")
	downloadCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	downloadCmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress during download")

	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "Show what would be deleted")
	cleanCmd.Flags().BoolVarP(&cleanList, "list", "l", false, "Only list the directory contents")
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "Do not ask for confirmation")

	jiraCmd.AddCommand(downloadCmd, attachmentsCmd, cleanCmd)
}

func initLogger() (*zap.Logger, func(), error) {
	l, err := logger.InitForCLI(cfg.Log.Level, cfg.Log.File, cfg.Log.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, func() { _ = logger.Sync() }, nil
}

func newJiraClient(l *zap.Logger) (*jira.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return jira.NewClient(jira.ClientConfig{
		BaseURL:           cfg.Jira.BaseURL,
		Email:             cfg.Jira.Email,
		APIToken:          cfg.Jira.APIToken,
		Timeout:           cfg.Jira.Timeout,
		RequestsPerSecond: cfg.Jira.RequestsPerSecond,
	}, l), nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	l, sync, err := initLogger()
	if err != nil {
		return err
	}
	defer sync()

	key, err := ticketKey(args)
	if err != nil {
		return err
	}

	client, err := newJiraClient(l)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("attachment_download")
	downloader := jira.NewDownloader(client, client.BaseURL(), cfg.Download.BaseDir,
		jira.WithDownloadLogger(l),
		jira.WithDownloadObserver(m))

	concurrency := maxConcurrent
	if !cmd.Flags().Changed("concurrent") {
		concurrency = cfg.Download.MaxConcurrent
	}
	folder := outputFolder
	if folder == "" {
		folder = cfg.Download.OutputFolder
	}

	req := jira.DownloadRequest{
		Key:           key,
		All:           downloadAll,
		OutputFolder:  folder,
		MaxConcurrent: concurrency,
	}
	if showProgress {
		req.Progress = cli.ProgressPrinter(cmd.ErrOrStderr())
	}

	result, err := downloader.Download(ctx, req)
	writeMetrics(m, l)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := cli.NewOutputManager(w).Output(result, cli.OutputOptions{Format: outputFormat}); err != nil {
		return err
	}
	if outputFormat == "table" {
		cli.NewSummaryPrinter(cmd.OutOrStdout()).PrintSummary(result)
	}
	return nil
}

func runAttachments(cmd *cobra.Command, args []string) error {
	l, sync, err := initLogger()
	if err != nil {
		return err
	}
	defer sync()

	client, err := newJiraClient(l)
	if err != nil {
		return err
	}

	attachments, err := client.GetAttachments(cmd.Context(), strings.ToUpper(args[0]))
	if err != nil {
		return err
	}
	if len(attachments) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No attachments")
		return nil
	}
	return cli.NewOutputManager(cmd.OutOrStdout()).AttachmentTable(attachments)
}

func runClean(cmd *cobra.Command, args []string) error {
	l, sync, err := initLogger()
	if err != nil {
		return err
	}
	defer sync()

	key := ""
	if len(args) == 1 {
		key = strings.ToUpper(args[0])
	}

	cleaner := jira.NewCleaner(cfg.Download.BaseDir, l)
	opts := jira.CleanOptions{DryRun: cleanDryRun, ListOnly: cleanList}

	if !opts.DryRun && !opts.ListOnly && !cleanYes {
		info, err := cleaner.Inspect(key)
		if err != nil {
			return err
		}
		if info == nil {
			cli.NewSummaryPrinter(cmd.OutOrStdout()).PrintClean(&jira.CleanResult{})
			return nil
		}
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
			fmt.Sprintf("Delete %s (%d files, %s)?", info.Path, info.FileCount, cli.FormatSize(info.Size))) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
	}

	result, err := cleaner.Clean(key, opts)
	if err != nil {
		return err
	}
	cli.NewSummaryPrinter(cmd.OutOrStdout()).PrintClean(result)
	return nil
}

// ticketKey returns the key argument, or the key found in the current branch.
func ticketKey(args []string) (string, error) {
	if len(args) == 1 {
		return strings.ToUpper(args[0]), nil
	}
	key, err := git.TicketFromRepo(".")
	if err != nil {
		return "", fmt.Errorf("no ticket key given and none found in the current branch: %w", err)
	}
	return key, nil
}

func writeMetrics(m *metrics.Metrics, l *zap.Logger) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		l.Warn("failed to write metrics textfile", zap.Error(err))
	}
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

