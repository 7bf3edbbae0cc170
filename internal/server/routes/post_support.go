package routes

import (
	"errors"
	"net/http"

	"github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
	"github.com/ojpp/broadlistening/backend/pkg/store"
	pgxstore "github.com/ojpp/broadlistening/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// SupportOpinionHandler records an endorsement for an opinion. The next
// analysis batch rewards the new support with a pheromone deposit.
func SupportOpinionHandler(c echo.Context) error {
	type supportOpinionBody struct {
		TopicID   string `param:"id" validate:"required"`
		OpinionID string `param:"oid" validate:"required"`
		Delta     int    `json:"delta" validate:"omitempty,oneof=-1 1"`
	}

	type supportOpinionResponse struct {
		Message string `json:"message"`
	}

	data := new(supportOpinionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, supportOpinionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, supportOpinionResponse{
			Message: "Invalid request body",
		})
	}
	if data.Delta == 0 {
		data.Delta = 1
	}

	ctx := c.Request().Context()
	st := pgxstore.NewEcosystemDBStorage(c.(*middleware.AppContext).App.DBConn)

	if err := st.AdjustSupport(ctx, data.OpinionID, data.Delta); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, supportOpinionResponse{
				Message: "Opinion not found",
			})
		}
		logger.Error("Failed to adjust support", "err", err, "opinion_id", data.OpinionID)
		return c.JSON(http.StatusInternalServerError, supportOpinionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, supportOpinionResponse{
		Message: "Support recorded",
	})
}
