// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/app"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/config"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/controller"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/handler"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/queue"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, os.Stdout, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	q, closeQueue, err := startQueue(ctx, a)
	if err != nil {
		a.Logger.Error("queue_start_failed", "error", err)
		os.Exit(1)
	}
	defer closeQueue()
	a.Campaigns.Queue = q

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(a.Campaigns, a.Logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.Logger.Info("server_started", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server_shutdown_failed", "error", err)
	}
	a.Logger.Info("server_stopped")
}

// startQueue publishes to RabbitMQ when AMQP_URL is set; cmd/worker consumes
// those runs. Without a broker, runs execute in this process.
func startQueue(ctx context.Context, a *app.App) (queue.Queue, func(), error) {
	if a.Config.AMQPURL != "" {
		q, err := queue.NewAMQPQueue(a.Config.AMQPURL, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	}

	q := queue.NewInMemoryQueue(a.Logger)
	worker := service.NewWorker(a.Campaigns, a.Logger)
	if err := queue.StartCampaignRunSubscriber(ctx, q, worker.Handle, a.Logger); err != nil {
		return nil, nil, err
	}
	return q, func() {}, nil
}

func newRouter(campaigns *service.CampaignService, logger *slog.Logger) http.Handler {
	campaignController := &controller.CampaignController{CampaignService: campaigns}
	campaignHandler := handler.NewCampaignHandler(campaigns, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Campaign routes
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaignHandlerWithStats)
	r.Get("/campaigns/{id}/records", campaignHandler.ListRecordsHandler)
	r.Post("/campaigns/{id}/send", campaignController.SendCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)
	r.Delete("/campaigns/{id}/records", campaignHandler.ClearCampaignHandler)

	// History routes
	r.Get("/history", campaignHandler.RecentHistoryHandler)
	r.Delete("/history", campaignHandler.ClearHistoryHandler)

	return r
}
