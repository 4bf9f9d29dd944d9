// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/config"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/db"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/logger"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/mailer"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/queue"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/repository"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/service"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/validator"
)

// App holds the wired components shared by the binaries.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *db.DB
	History    *repository.SendHistoryRepository
	Dispatcher *service.Dispatcher
	Campaigns  *service.CampaignService
}

// New opens the history store, runs migrations and builds the dispatch
// stack. q may be nil for binaries that never enqueue runs.
func New(ctx context.Context, cfg *config.Config, logOut io.Writer, q queue.Queue) (*App, error) {
	log := logger.New(logOut, cfg.LogLevel, cfg.LogFormat)

	store, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	transport, err := mailer.New(cfg.Mailer(), log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("transport: %w", err)
	}

	addresses, err := validator.NewV10Validator()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("validator: %w", err)
	}

	history := repository.NewSendHistoryRepository(store)
	renderer := service.NewRenderer(cfg.Globals(), cfg.UnsubscribeLink)
	dispatcher := service.NewDispatcher(history, renderer, transport, addresses, log)

	return &App{
		Config:     cfg,
		Logger:     log,
		DB:         store,
		History:    history,
		Dispatcher: dispatcher,
		Campaigns: &service.CampaignService{
			History:  history,
			Runner:   dispatcher,
			Renderer: renderer,
			Queue:    q,
			Defaults: cfg.Defaults(),
			Dispatch: cfg.Dispatch(),
			Logger:   log,
		},
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
