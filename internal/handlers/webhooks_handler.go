package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/syncline/ordersync/internal/awsx"
	"github.com/syncline/ordersync/internal/events"
	"github.com/syncline/ordersync/internal/queue"
	"github.com/syncline/ordersync/internal/source"
	"github.com/syncline/ordersync/internal/validation"
)

// QueueStore is the durable request queue the ingestion boundary writes to.
type QueueStore interface {
	Enqueue(ctx context.Context, sourceOrderID, eventType string, cls events.Classification, payload []byte) (string, error)
	ListFailed(ctx context.Context, limit int) ([]queue.Row, error)
}

// NudgePublisher wakes the dispatcher after a durable enqueue. Delivery is
// best effort: the interval poll picks up anything a lost nudge leaves behind.
type NudgePublisher interface {
	SendNudge(ctx context.Context, n awsx.Nudge) error
}

// HandlerConfig groups dependencies for the webhook routes.
type HandlerConfig struct {
	Queue        QueueStore
	Publisher    NudgePublisher
	ParseOptions source.ParseOptions
	Logger       *zap.Logger
}

// RegisterWebhookRoutes registers the ingestion and operator routes.
func RegisterWebhookRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/webhooks/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.WebhookRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		cls, outcome := events.Classify(req.Event)
		switch outcome {
		case events.OutcomeIgnored:
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		case events.OutcomeUnknown:
			// unknown events are acknowledged so the upstream stops
			// redelivering; the log line is the operator's signal
			cfg.Logger.Warn("unknown webhook event", zap.String("event", req.Event))
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		order, err := source.Parse(req.Data, cfg.ParseOptions)
		if err != nil {
			if errors.Is(err, source.ErrMissingOrderID) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing_order_id"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "msg": err.Error()})
			return
		}

		requestID, err := cfg.Queue.Enqueue(ctx, order.ID, req.Event, cls, req.Data)
		if err != nil {
			cfg.Logger.Error("enqueue failed",
				zap.String("source_order_id", order.ID),
				zap.String("event", req.Event),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}

		if cfg.Publisher != nil {
			nudge := awsx.Nudge{RequestID: requestID, SourceOrderID: order.ID, EventType: req.Event}
			if err := cfg.Publisher.SendNudge(ctx, nudge); err != nil {
				cfg.Logger.Warn("nudge send failed, interval poll will pick up the row",
					zap.String("request_id", requestID),
					zap.Error(err),
				)
			}
		}

		cfg.Logger.Info("webhook accepted",
			zap.String("request_id", requestID),
			zap.String("source_order_id", order.ID),
			zap.String("event", req.Event),
		)
		c.JSON(http.StatusAccepted, gin.H{"request_id": requestID})
	})

	r.GET("/admin/failures", func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		rows, err := cfg.Queue.ListFailed(c.Request.Context(), limit)
		if err != nil {
			cfg.Logger.Error("failed rows query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
			return
		}

		out := make([]gin.H, 0, len(rows))
		for _, row := range rows {
			out = append(out, gin.H{
				"request_id":      row.ID,
				"source_order_id": row.SourceOrderID,
				"event_type":      row.EventType,
				"attempts":        row.Attempts,
				"last_error":      row.LastError,
				"created_at":      row.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, gin.H{"failures": out})
	})
}
