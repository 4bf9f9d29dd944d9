package queue

import (
	"context"
	"log/slog"
)

// StartCampaignRunSubscriber routes campaign run requests to handle.
func StartCampaignRunSubscriber(ctx context.Context, q Queue, handle Handler, logger *slog.Logger) error {
	if err := q.Subscribe(ctx, TopicCampaignRuns, handle); err != nil {
		logger.Error("subscribe_failed", "topic", TopicCampaignRuns, "error", err)
		return err
	}
	logger.Info("subscriber_started", "topic", TopicCampaignRuns)
	return nil
}
