package routes

import (
	"errors"
	"net/http"

	"github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/pkg/ecosystem"
	"github.com/ojpp/broadlistening/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetEcosystemHandler returns the full visualization snapshot of a topic.
func GetEcosystemHandler(c echo.Context) error {
	type getEcosystemParams struct {
		TopicID string `param:"id" validate:"required"`
	}

	params := new(getEcosystemParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	ctx := c.Request().Context()
	engine := c.(*middleware.AppContext).App.Engine

	snapshot, err := engine.BuildSnapshot(ctx, params.TopicID)
	if err != nil {
		if errors.Is(err, ecosystem.ErrUnknownTopic) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Topic not found"})
		}
		logger.Error("Failed to build snapshot", "err", err, "topic_id", params.TopicID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, snapshot)
}
