package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	costingdomain "github.com/profitlens/profitlens/internal/costing/domain"
	eventdomain "github.com/profitlens/profitlens/internal/event/domain"
	"go.uber.org/zap"
)

type eventPayload struct {
	IdempotencyKey     string                         `json:"idempotency_key"`
	CustomerExternalID string                         `json:"customer_external_id"`
	CustomerName       string                         `json:"customer_name"`
	EventType          string                         `json:"event_type"`
	RevenueCents       int64                          `json:"revenue_cents"`
	VendorCosts        []costingdomain.VendorCostLine `json:"vendor_costs"`
	Metadata           map[string]any                 `json:"metadata"`
	OccurredAt         time.Time                      `json:"occurred_at"`
}

type batchRequest struct {
	Events []eventPayload `json:"events"`
}

type batchItemResult struct {
	Index   int    `json:"index"`
	EventID string `json:"event_id,omitempty"`
	Created bool   `json:"created"`
	Error   string `json:"error,omitempty"`
}

func (p eventPayload) toRequest() eventdomain.CreateEventRequest {
	return eventdomain.CreateEventRequest{
		IdempotencyKey:     p.IdempotencyKey,
		CustomerExternalID: p.CustomerExternalID,
		CustomerName:       p.CustomerName,
		EventType:          p.EventType,
		RevenueCents:       p.RevenueCents,
		VendorCosts:        p.VendorCosts,
		Metadata:           p.Metadata,
		OccurredAt:         p.OccurredAt,
	}
}

// ingestEvents accepts up to MaxBatchSize events. Items succeed or fail
// individually; the batch itself is not transactional.
func (s *Server) ingestEvents(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_batch"})
		return
	}
	if len(req.Events) > eventdomain.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch_too_large"})
		return
	}

	ctx := c.Request.Context()
	results := make([]batchItemResult, 0, len(req.Events))
	accepted := 0
	for i, payload := range req.Events {
		res, err := s.events.Ingest(ctx, payload.toRequest())
		if err != nil {
			results = append(results, batchItemResult{Index: i, Error: err.Error()})
			continue
		}
		results = append(results, batchItemResult{
			Index:   i,
			EventID: res.Event.ID.String(),
			Created: res.Created,
		})
		accepted++
		if res.Created {
			s.processAsync(ctx, res.Event.ID, false)
		}
	}

	status := http.StatusOK
	if accepted == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"results": results})
}

func (s *Server) ingestTelemetryEvents(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_batch"})
		return
	}
	if len(req.Events) > eventdomain.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch_too_large"})
		return
	}

	ctx := c.Request.Context()
	results := make([]batchItemResult, 0, len(req.Events))
	accepted := 0
	for i, payload := range req.Events {
		res, err := s.events.IngestTelemetry(ctx, payload.toRequest())
		if err != nil {
			results = append(results, batchItemResult{Index: i, Error: err.Error()})
			continue
		}
		results = append(results, batchItemResult{
			Index:   i,
			EventID: res.Event.ID.String(),
			Created: res.Created,
		})
		accepted++
		if res.Created {
			s.processAsync(ctx, res.Event.ID, true)
		}
	}

	status := http.StatusOK
	if accepted == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"results": results})
}

func (s *Server) getEvent(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event_id"})
		return
	}

	event, err := s.events.GetByID(c.Request.Context(), orgID, id)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// processAsync kicks the state machine outside the request. A crash here is
// harmless: the redrive loop picks the event up again.
func (s *Server) processAsync(_ context.Context, eventID snowflake.ID, telemetry bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		if telemetry {
			err = s.events.ProcessTelemetryEvent(ctx, eventID)
		} else {
			err = s.events.ProcessEvent(ctx, eventID)
		}
		if err != nil {
			s.log.Warn("async processing failed",
				zap.String("event_id", eventID.String()),
				zap.Bool("telemetry", telemetry),
				zap.Error(err),
			)
		}
	}()
}
