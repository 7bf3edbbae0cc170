package routes

import (
	"errors"
	"net/http"

	"github.com/ojpp/broadlistening/backend/internal/queue"
	"github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/ecosystem"
	"github.com/ojpp/broadlistening/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AnalyzeTopicHandler runs one analysis batch for a topic, or enqueues a
// full run for the worker when async is requested.
func AnalyzeTopicHandler(c echo.Context) error {
	type analyzeTopicBody struct {
		TopicID   string `param:"id" validate:"required"`
		BatchSize int    `json:"batch_size" validate:"omitempty,min=1"`
		Async     bool   `json:"async"`
	}

	type analyzeTopicResponse struct {
		Message             string `json:"message"`
		AnalyzedThisBatch   int    `json:"analyzedThisBatch"`
		RemainingUnanalyzed int    `json:"remainingUnanalyzed"`
	}

	data := new(analyzeTopicBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, analyzeTopicResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, analyzeTopicResponse{
			Message: "Invalid request body",
		})
	}

	if data.BatchSize <= 0 {
		// Same default as the worker, so both trigger paths behave alike.
		data.BatchSize = queue.DefaultBatchSize
	}

	app := c.(*middleware.AppContext).App

	if data.Async {
		if err := queue.PublishAnalyze(app.Queue, data.TopicID, data.BatchSize); err != nil {
			logger.Error("Failed to publish analyze message", "err", err, "topic_id", data.TopicID)
			return c.JSON(http.StatusInternalServerError, analyzeTopicResponse{
				Message: "Internal server error",
			})
		}
		return c.JSON(http.StatusAccepted, analyzeTopicResponse{
			Message: "Analysis queued",
		})
	}

	ctx := c.Request().Context()
	result, err := app.Engine.RunBatch(ctx, data.TopicID, data.BatchSize)
	if err != nil {
		switch {
		case errors.Is(err, ecosystem.ErrBusy):
			return c.JSON(http.StatusConflict, analyzeTopicResponse{
				Message: "Analysis already running for this topic",
			})
		case errors.Is(err, ecosystem.ErrInvalidInput):
			return c.JSON(http.StatusBadRequest, analyzeTopicResponse{
				Message: "Invalid request body",
			})
		case errors.Is(err, ecosystem.ErrUnknownTopic):
			return c.JSON(http.StatusNotFound, analyzeTopicResponse{
				Message: "Topic not found",
			})
		case errors.Is(err, ai.ErrUnavailable), errors.Is(err, ai.ErrTimeout), errors.Is(err, ai.ErrMalformedOutput):
			logger.Error("Analyzer failed during batch", "err", err, "topic_id", data.TopicID)
			return c.JSON(http.StatusBadGateway, analyzeTopicResponse{
				Message: "Analyzer unavailable",
			})
		default:
			logger.Error("Failed to run analysis batch", "err", err, "topic_id", data.TopicID)
			return c.JSON(http.StatusInternalServerError, analyzeTopicResponse{
				Message: "Internal server error",
			})
		}
	}

	return c.JSON(http.StatusOK, analyzeTopicResponse{
		Message:             "Batch analyzed successfully",
		AnalyzedThisBatch:   result.AnalyzedThisBatch,
		RemainingUnanalyzed: result.RemainingUnanalyzed,
	})
}
