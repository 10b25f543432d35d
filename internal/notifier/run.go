package notifier

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"busmate/internal/config"
	"busmate/internal/pgmq"

	"github.com/rs/zerolog"
)

// Worker drains the e-ticket queue and delivers each ticket to the configured
// webhook. Messages that keep failing move to the dead-letter queue so one
// poison ticket cannot stall delivery.
type Worker struct {
	queue  *pgmq.Client
	client *http.Client
	cfg    *config.Config
	logger zerolog.Logger
}

func New(queue *pgmq.Client, cfg *config.Config, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:  queue,
		client: &http.Client{Timeout: 30 * time.Second},
		cfg:    cfg,
		logger: logger.With().Str("worker", "eticket-notifier").Logger(),
	}
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Str("queue", w.cfg.ETicketQueueName).Msg("E-ticket notifier started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("E-ticket notifier stopping")
			return ctx.Err()
		default:
		}

		msgs, err := w.queue.ReadWithPoll(ctx, w.cfg.ETicketQueueName, w.cfg.ETicketPollTimeoutSec, w.cfg.ETicketPollMaxMsg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("Reading from e-ticket queue failed")
			time.Sleep(time.Duration(w.cfg.ETicketBackoffInitialSec) * time.Second)
			continue
		}

		for _, msg := range msgs {
			w.process(ctx, msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg *pgmq.Message) {
	logger := w.logger.With().Int64("msg_id", msg.ID).Logger()

	if err := w.deliverWithRetry(ctx, msg.Data); err != nil {
		logger.Error().Err(err).Msg("E-ticket delivery exhausted retries, moving to dead-letter queue")
		if dlqErr := w.queue.Send(ctx, w.cfg.ETicketDeadLetterQueueName, msg.Data); dlqErr != nil {
			// Leave the message in place; pgmq redelivers it after the
			// visibility timeout.
			logger.Error().Err(dlqErr).Msg("Dead-lettering e-ticket failed")
			return
		}
	}

	if err := w.queue.Delete(ctx, w.cfg.ETicketQueueName, []int64{msg.ID}); err != nil {
		logger.Error().Err(err).Msg("Deleting processed e-ticket message failed")
	}
}

func (w *Worker) deliverWithRetry(ctx context.Context, payload []byte) error {
	backoff := time.Duration(w.cfg.ETicketBackoffInitialSec) * time.Second
	maxBackoff := time.Duration(w.cfg.ETicketBackoffMaxSec) * time.Second

	var lastErr error
	for attempt := 1; attempt <= w.cfg.ETicketMaxRetries; attempt++ {
		lastErr = w.deliver(ctx, payload)
		if lastErr == nil {
			return nil
		}
		w.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("E-ticket delivery attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return fmt.Errorf("delivery failed after %d attempts: %w", w.cfg.ETicketMaxRetries, lastErr)
}

func (w *Worker) deliver(ctx context.Context, payload []byte) error {
	// Without a webhook the notifier degrades to logging the ticket, which
	// keeps development setups working end to end.
	if w.cfg.ETicketWebhookURL == "" {
		w.logger.Info().RawJSON("eticket", payload).Msg("E-ticket ready (no webhook configured)")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.ETicketWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling e-ticket webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("e-ticket webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
