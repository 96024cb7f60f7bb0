package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lnscraper/pkg/checkpoint"
	"lnscraper/pkg/config"
	"lnscraper/pkg/feed"
	"lnscraper/pkg/logger"
	"lnscraper/pkg/markdown"
	"lnscraper/pkg/session"
	"lnscraper/pkg/target"
	"lnscraper/pkg/ui"
)

var (
	// Extract command flags
	outputDir          string
	maxPages           int
	maxPosts           int
	pageFailureLimit   int
	checkpointInterval time.Duration
	maxRetries         int
	rateLimit          int
	fetchTimeout       int
	bypassBlock        bool
	forceRestart       bool
	totalEstimate      int
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <profile-url>",
	Short: "Extract posts from a LinkedIn profile",
	Long: `Extract all posts from a LinkedIn profile and write them to a Markdown
document.

The session checkpoints its progress continuously. If the run is
interrupted, running the same command again resumes from the last
checkpoint instead of starting over. Pages that keep failing are
skipped and annotated in the output rather than aborting the whole
extraction.`,
	Example: `  # Extract posts using default settings
  lnscraper extract https://www.linkedin.com/in/jane-doe

  # A bare username works too
  lnscraper extract jane-doe

  # Write the document to a specific directory
  lnscraper extract jane-doe --output ./exports

  # Cap the extraction and slow down the request rate
  lnscraper extract jane-doe --max-posts 200 --rate-limit 10

  # Force restart, ignoring the existing checkpoint
  lnscraper extract jane-doe --force-restart`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runExtract(args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for documents (default: current directory)")
	extractCmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum feed pages to fetch (0 = unlimited)")
	extractCmd.Flags().IntVar(&maxPosts, "max-posts", 0, "maximum posts to collect (0 = unlimited)")
	extractCmd.Flags().IntVar(&pageFailureLimit, "page-failure-limit", 0, "consecutive failed pages before stopping with a partial result")
	extractCmd.Flags().DurationVar(&checkpointInterval, "checkpoint-interval", 0, "interval between periodic checkpoints")
	extractCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "maximum retry attempts per page fetch")
	extractCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "page requests per minute")
	extractCmd.Flags().IntVar(&fetchTimeout, "fetch-timeout", 30, "per-request timeout in seconds")
	extractCmd.Flags().BoolVar(&bypassBlock, "bypass-block", false, "treat anti-automation blocks as retryable page failures")
	extractCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "force restart, ignoring existing checkpoint")
	extractCmd.Flags().IntVar(&totalEstimate, "expected-posts", 0, "expected total post count, used for ETA")
}

func runExtract(rawTarget string) {
	rawTarget = strings.TrimSpace(rawTarget)

	profile, err := target.Parse(rawTarget)
	if err != nil {
		ui.PrintError("Invalid profile", err.Error())
		for _, s := range target.Suggest(rawTarget) {
			ui.PrintInfo("Did you mean", s)
		}
		os.Exit(1)
	}

	ui.PrintInfo("Target Profile", profile.Username)

	// Build flags map from command line
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if maxPages > 0 {
		flags["max-pages"] = maxPages
	}
	if maxPosts > 0 {
		flags["max-posts"] = maxPosts
	}
	if pageFailureLimit > 0 {
		flags["page-failure-limit"] = pageFailureLimit
	}
	if checkpointInterval > 0 {
		flags["checkpoint-interval"] = checkpointInterval
	}
	if maxRetries > 0 {
		flags["max-retries"] = maxRetries
	}
	if rateLimit > 0 {
		flags["rate-limit"] = rateLimit
	}
	if bypassBlock {
		flags["bypass-block"] = true
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("lnscraper starting")

	client := feed.NewClient(time.Duration(fetchTimeout)*time.Second, log)
	fetcher := feed.NewFetcher(client, profile.Username)
	writer := markdown.NewWriter(cfg.Output.Directory, cfg.Output.FileNamePattern)

	mgr, err := session.New(cfg, profile, session.Options{
		ForceRestart:  forceRestart,
		TotalEstimate: totalEstimate,
	}, session.Deps{
		Fetcher: fetcher,
		Writer:  writer,
		Logger:  log,
	})
	if err != nil {
		ui.PrintError("Failed to initialize session", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		ui.PrintWarning("Interrupt received, checkpointing session")
		mgr.Stop()
		cancel()

		// A second signal or an overrun of the grace period forces exit.
		select {
		case <-sigCh:
		case <-time.After(cfg.Extraction.GraceTimeout):
		}
		os.Exit(130)
	}()

	display := ui.NewDisplay(profile.Username)
	displayDone := make(chan struct{})
	go func() {
		defer close(displayDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				display.Render(mgr.Progress())
			}
		}
	}()

	ui.PrintHighlight("[STARTING EXTRACTION]")

	outcome, err := mgr.Run(ctx)
	cancel()
	<-displayDone
	display.Finish()

	if err != nil {
		log.WithError(err).Error("extraction failed to start")
		ui.PrintError("EXTRACTION FAILED", err.Error())
		os.Exit(1)
	}

	printOutcome(outcome)
}

func printOutcome(outcome *session.Outcome) {
	switch outcome.Status {
	case checkpoint.StatusCompleted:
		if outcome.Empty {
			ui.PrintWarning("Profile has no posts; wrote an empty document")
		} else if outcome.Partial {
			ui.PrintWarning("Completed with partial results")
		} else {
			ui.PrintSuccess("[EXTRACTION COMPLETED]")
		}
	case checkpoint.StatusInterrupted:
		ui.PrintWarning("Session interrupted; run the same command to resume")
	case checkpoint.StatusFailed:
		ui.PrintError("EXTRACTION FAILED", outcome.Cause)
	}

	ui.PrintInfo("Posts collected", strconv.Itoa(outcome.ItemsCollected))
	if outcome.PagesFailed > 0 {
		ui.PrintInfo("Pages skipped", strconv.Itoa(outcome.PagesFailed))
	}
	if outcome.OutputPath != "" {
		ui.PrintInfo("Output", outcome.OutputPath)
	}

	if outcome.Status == checkpoint.StatusFailed {
		os.Exit(1)
	}
}
