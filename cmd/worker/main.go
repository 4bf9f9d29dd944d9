// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/app"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/config"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/queue"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/service"
)

var errNoBroker = errors.New("amqp_url is required for the worker")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

// run consumes campaign run requests from RabbitMQ until ctx ends. Runs are
// handled one at a time. A run cut short by shutdown is acked; publishing the
// same request again resumes it from the send history.
func run(ctx context.Context, args []string, logOut io.Writer) error {
	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.AMQPURL == "" {
		return errNoBroker
	}

	a, err := app.New(ctx, cfg, logOut, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := queue.NewAMQPQueue(cfg.AMQPURL, a.Logger)
	if err != nil {
		return err
	}
	defer q.Close()
	a.Campaigns.Queue = q

	worker := service.NewWorker(a.Campaigns, a.Logger)
	if err := queue.StartCampaignRunSubscriber(ctx, q, worker.Handle, a.Logger); err != nil {
		return err
	}

	a.Logger.Info("worker_running", "topic", queue.TopicCampaignRuns)
	<-ctx.Done()
	a.Logger.Info("worker_stopped")
	return nil
}
