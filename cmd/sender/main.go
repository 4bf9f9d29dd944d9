// cmd/sender/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/app"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/config"
	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitInterrupted = 130

	errorsToPrint = 10
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("sender", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	campaign := fs.String("campaign", "daily-"+time.Now().Format("2006-01-02"), "campaign id; a recipient gets at most one email per campaign")
	subject := fs.String("subject", "", "subject template (default from config)")
	body := fs.String("body", "", "body template (default from config)")
	bodyFile := fs.String("body-file", "", "read the body template from a file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: sender [flags] <recipients.csv>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitFatal
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitFatal
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFatal
	}

	if *bodyFile != "" {
		b, err := os.ReadFile(*bodyFile)
		if err != nil {
			fmt.Fprintf(stderr, "body file: %v\n", err)
			return exitFatal
		}
		*body = string(b)
	}

	a, err := app.New(context.WithoutCancel(ctx), cfg, stderr, nil)
	if err != nil {
		fmt.Fprintf(stderr, "startup: %v\n", err)
		return exitFatal
	}
	defer a.Close()

	report, err := a.Campaigns.RunRequest(ctx, model.RunRequest{
		CampaignID:    *campaign,
		SourcePath:    fs.Arg(0),
		AddressColumn: cfg.AddressColumn,
		Subject:       *subject,
		Body:          *body,
		Format:        cfg.BodyFormat,
	})
	if report != nil {
		printReport(stdout, report)
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintln(stderr, "interrupted; rerun with the same campaign to resume")
		return exitInterrupted
	default:
		fmt.Fprintf(stderr, "%s: %v\n", appErrors.KindOf(err), err)
		return exitFatal
	}
}

func printReport(w io.Writer, r *model.CampaignReport) {
	mode := "live"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "campaign %s (%s, run %s)\n", r.CampaignID, mode, r.RunID)
	fmt.Fprintf(w, "total: %d  sent: %d  failed: %d  skipped: %d  deferred: %d\n",
		r.Total, r.Sent, r.Failed, r.Skipped, r.Deferred)

	errs := r.FirstErrors(errorsToPrint)
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(w, "errors:")
	for _, e := range errs {
		fmt.Fprintf(w, "  %s [%s] %s\n", e.Address, e.Kind, e.Error)
	}
	if more := len(r.Errors) - len(errs); more > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", more)
	}
}
