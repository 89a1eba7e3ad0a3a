package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/browser"
	"github.com/cvtailor/cvtailor/internal/config"
	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/formscan"
	"github.com/cvtailor/cvtailor/internal/temporal"
	"github.com/cvtailor/cvtailor/internal/workflows"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

var (
	htmlFile   string
	resumeFile string
	watch      bool
	apply      bool
	jsonOut    bool
	batch      bool
	verbose    bool
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "scan <url>...",
		Short: "Discover the application forms of job pages",
		Long: `scan opens each job page in a headless browser, runs the site adapters and
generic form discovery, and prints the shadow forms it found.

Examples:
  scan https://boards.greenhouse.io/acme/jobs/123
  scan --file saved.html https://jobs.example.com/apply
  scan --watch --apply https://apply.workable.com/acme/j/ABC/apply
  scan --batch https://a.example.com/jobs/1 https://b.example.com/jobs/2`,
		Args: cobra.MinimumNArgs(1),
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&htmlFile, "file", "f", "", "Scan a saved HTML file instead of the live page (single URL)")
	rootCmd.Flags().StringVarP(&resumeFile, "resume", "r", "", "Resume JSON used for repeated-section counts")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep the page open and rescan on every poll interval")
	rootCmd.Flags().BoolVar(&apply, "apply", false, "Write discovered ids back onto the live page")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	rootCmd.Flags().BoolVar(&batch, "batch", false, "Run the URLs as a batch on the Temporal worker")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show scanner logs")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if batch {
		return runBatch(ctx, cfg, args, logger)
	}

	resume, err := loadResume(resumeFile)
	if err != nil {
		return err
	}
	var counter formscan.ResumeCounter
	if resume != nil {
		counter = resume
	}

	scanner := formscan.NewScanner(cfg.Scan.Options(), logger)

	if htmlFile != "" {
		if len(args) != 1 {
			return fmt.Errorf("--file takes exactly one url")
		}
		return runFile(ctx, scanner, args[0], counter)
	}

	b, err := browser.Launch(cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	defer b.Close()

	if watch {
		if len(args) != 1 {
			return fmt.Errorf("--watch takes exactly one url")
		}
		return runWatch(ctx, b, scanner, args[0], counter, cfg.Browser, logger)
	}

	return runLive(ctx, b, scanner, args, counter)
}

func runFile(ctx context.Context, scanner *formscan.Scanner, rawURL string, resume formscan.ResumeCounter) error {
	f, err := os.Open(htmlFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", htmlFile, err)
	}
	defer f.Close()

	page, err := formscan.NewStaticPage(rawURL, f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", htmlFile, err)
	}

	result, err := scanner.Scan(ctx, page, resume)
	if err != nil {
		return err
	}
	return report([]*domain.ScanResult{result})
}

func runLive(ctx context.Context, b *browser.Browser, scanner *formscan.Scanner, urls []string, resume formscan.ResumeCounter) error {
	var bar *progressbar.ProgressBar
	if len(urls) > 1 && !jsonOut {
		bar = progressbar.NewOptions(len(urls),
			progressbar.OptionSetDescription("   Scanning..."),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionClearOnFinish(),
		)
	}

	var results []*domain.ScanResult
	for _, rawURL := range urls {
		if ctx.Err() != nil {
			break
		}
		result, err := scanLive(ctx, b, scanner, rawURL, resume)
		if err != nil {
			result = &domain.ScanResult{URL: rawURL}
			if !jsonOut {
				if bar != nil {
					bar.Clear()
				}
				red.Printf("✗ %s: %v\n", rawURL, err)
			}
		}
		results = append(results, result)
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	return report(results)
}

// scanLive scans one page, following a single iframe redirect
func scanLive(ctx context.Context, b *browser.Browser, scanner *formscan.Scanner, rawURL string, resume formscan.ResumeCounter) (*domain.ScanResult, error) {
	page, err := b.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	result, err := scanner.Scan(ctx, page, resume)
	if err != nil {
		return nil, err
	}
	if result.RedirectURL != "" {
		redirect := result.RedirectURL
		result, err = scanner.Scan(ctx, page, resume)
		if err != nil {
			return nil, err
		}
		if result.RedirectURL == "" {
			result.RedirectURL = redirect
		}
	}

	if apply && len(result.Mutations) > 0 {
		if _, err := page.Apply(ctx, result.Mutations); err != nil {
			return nil, fmt.Errorf("applying ids: %w", err)
		}
	}
	return result, nil
}

func runWatch(ctx context.Context, b *browser.Browser, scanner *formscan.Scanner, rawURL string, resume formscan.ResumeCounter, cfg config.BrowserConfig, logger *zap.Logger) error {
	page, err := b.Open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer page.Close()

	cyan.Printf("→ Watching %s every %s (Ctrl+C to stop)\n", rawURL, cfg.PollInterval)

	last := ""
	poller := browser.NewPoller(cfg.PollInterval, func(ctx context.Context) error {
		result, err := scanner.Scan(ctx, page, resume)
		if err != nil {
			return err
		}
		if apply && len(result.Mutations) > 0 {
			if _, err := page.Apply(ctx, result.Mutations); err != nil {
				return fmt.Errorf("applying ids: %w", err)
			}
		}
		sig := signature(result)
		if sig == last {
			return nil
		}
		last = sig
		return report([]*domain.ScanResult{result})
	}, logger)

	err = poller.Run(ctx)
	if skipped := poller.Skipped(); skipped > 0 {
		dim.Printf("   %d ticks skipped while a scan was running\n", skipped)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runBatch(ctx context.Context, cfg *config.Config, urls []string, logger *zap.Logger) error {
	c, err := temporal.NewClient(cfg.Temporal, logger)
	if err != nil {
		return fmt.Errorf("connecting to temporal: %w", err)
	}
	defer c.Close()

	input := workflows.BatchScanInput{
		BatchID: uuid.New().String(),
		URLs:    urls,
	}
	run, err := c.StartBatchScan(ctx, input)
	if err != nil {
		return err
	}
	cyan.Printf("→ Batch %s started (%d urls)\n", input.BatchID, len(urls))

	out, err := c.WaitBatchScan(ctx, run)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(out)
	}
	for _, p := range out.Pages {
		printPage(p)
	}
	fmt.Println()
	bold.Printf("%d scanned, %d failed, %d forms found in %s\n", out.Scanned, out.Failed, out.FormsFound, out.TotalDuration)
	return nil
}

func loadResume(path string) (*domain.ResumeContent, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resume: %w", err)
	}
	var resume domain.ResumeContent
	if err := json.Unmarshal(data, &resume); err != nil {
		return nil, fmt.Errorf("parsing resume %s: %w", path, err)
	}
	return &resume, nil
}
