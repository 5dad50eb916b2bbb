// Command statutectl builds the Title 18 index and queries it from a shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/statute-rag/internal/bootstrap"
	"github.com/kirillkom/statute-rag/internal/config"
	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/infrastructure/history/export"
	"github.com/kirillkom/statute-rag/internal/observability/logging"
	"github.com/urfave/cli/v2"
)

const maxK = 50

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	kFlag := &cli.IntFlag{
		Name:  "k",
		Usage: "Number of passages to return (0 uses DEFAULT_TOP_K)",
	}
	jsonFlag := &cli.BoolFlag{
		Name:  "json",
		Usage: "Print the raw result as JSON",
	}

	return &cli.App{
		Name:  "statutectl",
		Usage: "Build and query the Title 18 statute index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "build-index",
				Usage:  "Register a statute file and build the corpus from it",
				Action: buildIndexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the Title 18 PDF or text file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mime",
						Usage: "Override the detected MIME type",
					},
					&cli.BoolFlag{
						Name:  "notify",
						Usage: "Announce the rebuilt corpus on NATS so running APIs reload",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Abort the build after this long",
						Value: 30 * time.Minute,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question with statute citations",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: []cli.Flag{kFlag, jsonFlag, &cli.StringFlag{
					Name:  "session",
					Usage: "session id to record the interaction under",
				}},
			},
			{
				Name:      "retrieve",
				Usage:     "Print the ranked passages for a question",
				ArgsUsage: "QUESTION",
				Action:    retrieveCommand,
				Flags:     []cli.Flag{kFlag, jsonFlag},
			},
			{
				Name:  "history",
				Usage: "Inspect recorded interactions",
				Subcommands: []*cli.Command{
					{
						Name:   "export",
						Usage:  "Write recorded interactions to an XLSX workbook",
						Action: historyExportCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "out",
								Aliases:  []string{"o"},
								Usage:    "Destination .xlsx path",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "Maximum number of interactions to export",
								Value: 1000,
							},
						},
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level := strings.ToLower(c.String("log-level"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(logging.NewTextLogger(os.Stderr, "statutectl", level))
	return nil
}

func openApp(ctx context.Context, opts ...bootstrap.Option) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	opts = append([]bootstrap.Option{bootstrap.WithLogger(slog.Default())}, opts...)
	return bootstrap.New(ctx, cfg, opts...)
}

func buildIndexCommand(c *cli.Context) error {
	path := c.String("file")
	mimeType := c.String("mime")
	if mimeType == "" {
		mimeType = detectMIME(path)
	}

	opts := []bootstrap.Option{
		bootstrap.WithProfile(bootstrap.ProfileIndexing),
		bootstrap.WithoutHistory(),
	}
	if !c.Bool("notify") {
		opts = append(opts, bootstrap.WithoutQueue())
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open statute file: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	app, err := openApp(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	src, err := app.Ingest.Register(ctx, filepath.Base(path), mimeType, f)
	if err != nil {
		return fmt.Errorf("register source: %w", err)
	}
	started := time.Now()
	if err := app.Builder.BuildFromSource(ctx, src.ID); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	built, err := app.Ingest.GetByID(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("read build result: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "source %s indexed: %d chunks in %s\n",
		built.ID, built.ChunkCount, time.Since(started).Round(time.Millisecond))
	return nil
}

func detectMIME(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return "text/plain"
}

// questionArgs validates the positional question and --k before any
// backend is touched.
func questionArgs(c *cli.Context) (string, int, error) {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return "", 0, errors.New("a question is required")
	}
	k := c.Int("k")
	if k < 0 || k > maxK {
		return "", 0, fmt.Errorf("k must be between 0 and %d", maxK)
	}
	return question, k, nil
}

func openServingApp(c *cli.Context) (*bootstrap.App, int, error) {
	app, err := openApp(c.Context,
		bootstrap.WithProfile(bootstrap.ProfileServing),
		bootstrap.WithoutQueue(),
	)
	if err != nil {
		return nil, 0, err
	}
	if err := app.ReloadCorpus(c.Context); err != nil {
		app.Close()
		return nil, 0, fmt.Errorf("load corpus: %w", err)
	}
	return app, app.Config.DefaultTopK, nil
}

func askCommand(c *cli.Context) error {
	question, k, err := questionArgs(c)
	if err != nil {
		return err
	}
	app, defaultK, err := openServingApp(c)
	if err != nil {
		return err
	}
	defer app.Close()
	if k == 0 {
		k = defaultK
	}

	answer, err := app.Answerer.Answer(c.Context, domain.AnswerRequest{SessionID: c.String("session"), Question: question, K: k})
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, answer)
	}
	printAnswer(c.App.Writer, answer)
	return nil
}

func retrieveCommand(c *cli.Context) error {
	question, k, err := questionArgs(c)
	if err != nil {
		return err
	}
	app, defaultK, err := openServingApp(c)
	if err != nil {
		return err
	}
	defer app.Close()
	if k == 0 {
		k = defaultK
	}

	result, err := app.Answerer.Search(c.Context, question, k)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, result)
	}
	printRetrieval(c.App.Writer, result)
	return nil
}

func historyExportCommand(c *cli.Context) error {
	limit := c.Int("limit")
	if limit <= 0 {
		return errors.New("limit must be positive")
	}
	out := c.String("out")

	app, err := openApp(c.Context, bootstrap.WithoutQueue())
	if err != nil {
		return err
	}
	defer app.Close()
	if app.History == nil {
		return errors.New("interaction history is disabled (HISTORY_BACKEND=none)")
	}

	interactions, err := app.History.ListInteractions(c.Context, limit)
	if err != nil {
		return fmt.Errorf("list interactions: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := export.WriteXLSX(f, interactions); err != nil {
		_ = f.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "exported %d interactions to %s\n", len(interactions), out)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAnswer(w io.Writer, answer *domain.Answer) {
	fmt.Fprintln(w, answer.FormattedText)
	if len(answer.Citations) > 0 {
		fmt.Fprintln(w, "\nCitations:")
		for _, c := range answer.Citations {
			fmt.Fprintf(w, "  %s  %s\n", c.Reference, c.URL)
		}
	}
	if answer.DenseDegraded || answer.SparseDegraded {
		fmt.Fprintln(w, "\n(retrieval ran with a reduced signal set)")
	}
}

func printRetrieval(w io.Writer, result *domain.RetrievalResult) {
	fmt.Fprintf(w, "intent: %s\n", result.Query.Intent)
	for i, r := range result.Results {
		text := r.Text
		if len(text) > 160 {
			text = text[:160] + "..."
		}
		fmt.Fprintf(w, "%2d. %-20s %.4f  %s\n", i+1, r.ChunkID, r.FusedScore, strings.Join(strings.Fields(text), " "))
	}
	if result.DenseDegraded {
		fmt.Fprintln(w, "(dense signal unavailable)")
	}
	if result.SparseDegraded {
		fmt.Fprintln(w, "(lexical signal unavailable)")
	}
}
