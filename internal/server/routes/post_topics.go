package routes

import (
	"net/http"

	"github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
	pgxstore "github.com/ojpp/broadlistening/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CreateTopicHandler registers a new deliberation topic.
func CreateTopicHandler(c echo.Context) error {
	type createTopicBody struct {
		Title string `json:"title" validate:"required"`
		Phase string `json:"phase"`
	}

	type createTopicResponse struct {
		Message string        `json:"message"`
		Topic   *common.Topic `json:"topic,omitempty"`
	}

	data := new(createTopicBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createTopicResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createTopicResponse{
			Message: "Invalid request body",
		})
	}

	id, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createTopicResponse{
			Message: "Internal server error",
		})
	}

	phase := data.Phase
	if phase == "" {
		phase = "open"
	}
	topic := &common.Topic{
		ID:    id,
		Title: data.Title,
		Phase: phase,
	}

	ctx := c.Request().Context()
	store := pgxstore.NewEcosystemDBStorage(c.(*middleware.AppContext).App.DBConn)
	if err := store.CreateTopic(ctx, topic); err != nil {
		logger.Error("Failed to create topic", "err", err)
		return c.JSON(http.StatusInternalServerError, createTopicResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createTopicResponse{
		Message: "Topic created successfully",
		Topic:   topic,
	})
}
