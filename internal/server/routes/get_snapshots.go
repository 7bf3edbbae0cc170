package routes

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/internal/storage"
	"github.com/ojpp/broadlistening/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetSnapshotsHandler lists a topic's archived snapshots, or returns one
// archived payload when a key query parameter is given.
func GetSnapshotsHandler(c echo.Context) error {
	type getSnapshotsParams struct {
		TopicID string `param:"id" validate:"required"`
		Key     string `query:"key"`
	}

	type getSnapshotsResponse struct {
		Message string   `json:"message"`
		Keys    []string `json:"keys,omitempty"`
	}

	params := new(getSnapshotsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getSnapshotsResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getSnapshotsResponse{
			Message: "Invalid request body",
		})
	}

	s3Client := c.(*middleware.AppContext).App.S3
	if s3Client == nil {
		return c.JSON(http.StatusServiceUnavailable, getSnapshotsResponse{
			Message: "Snapshot archive is not configured",
		})
	}

	ctx := c.Request().Context()

	if params.Key != "" {
		// Keys of other topics are not readable through this route.
		if !strings.HasPrefix(params.Key, fmt.Sprintf("snapshots/%s/", params.TopicID)) {
			return c.JSON(http.StatusNotFound, getSnapshotsResponse{
				Message: "Snapshot not found",
			})
		}
		payload, err := storage.GetSnapshot(ctx, s3Client, params.Key)
		if err != nil {
			logger.Error("Failed to read archived snapshot", "err", err, "key", params.Key)
			return c.JSON(http.StatusNotFound, getSnapshotsResponse{
				Message: "Snapshot not found",
			})
		}
		return c.JSONBlob(http.StatusOK, payload)
	}

	keys, err := storage.ListSnapshots(ctx, s3Client, params.TopicID)
	if err != nil {
		logger.Error("Failed to list archived snapshots", "err", err, "topic_id", params.TopicID)
		return c.JSON(http.StatusInternalServerError, getSnapshotsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getSnapshotsResponse{
		Message: "Snapshots listed successfully",
		Keys:    keys,
	})
}
