// Command ask runs a retrieval query from the terminal. With -sanitize the
// hits go through the relevance filter; with -chat the tutor answers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aitutor/pdf-tutor/cmd/internal/wire"
	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/engine/rag"
	"github.com/aitutor/pdf-tutor/pkg/config"
)

func main() {
	var (
		docID    = flag.String("doc", "", "restrict to this document")
		topK     = flag.Int("k", domain.DefaultTopK, "number of results")
		sanitize = flag.Bool("sanitize", false, "filter hits through the chat model")
		chat     = flag.Bool("chat", false, "answer with the tutor (needs -doc)")
		page     = flag.Int("page", 1, "page the reader is on, for -chat")
		timeout  = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	)
	flag.Parse()
	query := strings.Join(flag.Args(), " ")

	cfg, err := config.Load()
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	logger := wire.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	app, err := wire.Build(ctx, cfg, logger, wire.PartRetrieval)
	if err != nil {
		fmt.Fprintln(os.Stderr, "setup:", err)
		os.Exit(1)
	}
	defer app.Close()

	if *chat {
		err = answer(ctx, app.Tutor, query, *docID, *page)
	} else {
		err = search(ctx, app, query, *docID, *topK, *sanitize)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		app.Close()
		os.Exit(1)
	}
}

func search(ctx context.Context, app *wire.App, query, docID string, topK int, sanitize bool) error {
	results, err := app.Retriever.Retrieve(ctx, query, docID, topK)
	if err != nil {
		return err
	}
	if sanitize {
		results = app.Sanitizer.Sanitize(ctx, query, results)
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tUNIT\tTYPE\tPAGE\tTEXT")
	for _, r := range results {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%d\t%s\n", r.Score, r.Unit.ID, r.Unit.Type, r.Unit.PageNumber, preview(r.Unit.Text, 80))
	}
	return tw.Flush()
}

func answer(ctx context.Context, t *rag.Tutor, query, docID string, page int) error {
	if docID == "" {
		return fmt.Errorf("-chat needs -doc")
	}
	ans, err := t.Ask(ctx, rag.Question{Message: query, DocumentID: docID, CurrentPage: page})
	if err != nil {
		return err
	}
	fmt.Println(ans.Text)
	if ans.SearchFailed {
		fmt.Println("\n(search failed; answered without document context)")
	}
	for _, c := range ans.Citations {
		fmt.Printf("\n[p.%d %s %.3f] %s", c.PageNumber, c.UnitID, c.Score, preview(c.Text, 100))
	}
	fmt.Println()
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
