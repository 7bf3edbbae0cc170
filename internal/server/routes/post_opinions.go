package routes

import (
	"net/http"
	"time"

	"github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
	pgxstore "github.com/ojpp/broadlistening/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CreateOpinionHandler submits a new opinion to a topic. The opinion stays
// unanalyzed until the next analysis batch picks it up.
func CreateOpinionHandler(c echo.Context) error {
	type createOpinionBody struct {
		TopicID string `param:"id" validate:"required"`
		Content string `json:"content" validate:"required"`
		Stance  string `json:"stance" validate:"required,oneof=FOR AGAINST NEUTRAL"`
	}

	type createOpinionResponse struct {
		Message string          `json:"message"`
		Opinion *common.Opinion `json:"opinion,omitempty"`
	}

	data := new(createOpinionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createOpinionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createOpinionResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	store := pgxstore.NewEcosystemDBStorage(c.(*middleware.AppContext).App.DBConn)

	exists, err := store.TopicExists(ctx, data.TopicID)
	if err != nil {
		logger.Error("Failed to look up topic", "err", err, "topic_id", data.TopicID)
		return c.JSON(http.StatusInternalServerError, createOpinionResponse{
			Message: "Internal server error",
		})
	}
	if !exists {
		return c.JSON(http.StatusNotFound, createOpinionResponse{
			Message: "Topic not found",
		})
	}

	id, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createOpinionResponse{
			Message: "Internal server error",
		})
	}

	opinion := &common.Opinion{
		ID:          id,
		TopicID:     data.TopicID,
		Content:     data.Content,
		Stance:      common.Stance(data.Stance),
		SubmittedAt: time.Now().UTC(),
	}
	if err := store.InsertOpinion(ctx, opinion); err != nil {
		logger.Error("Failed to insert opinion", "err", err, "topic_id", data.TopicID)
		return c.JSON(http.StatusInternalServerError, createOpinionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createOpinionResponse{
		Message: "Opinion submitted successfully",
		Opinion: opinion,
	})
}
