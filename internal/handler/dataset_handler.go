package handler

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/pkg/response"
	"github.com/xxxsen/dsforge/internal/service"
)

type DatasetHandler struct {
	pipeline PipelineService
}

func NewDatasetHandler(pipeline PipelineService) *DatasetHandler {
	return &DatasetHandler{pipeline: pipeline}
}

var knownStatuses = map[model.VerificationStatus]struct{}{
	model.VerificationPending:           {},
	model.VerificationVerified:          {},
	model.VerificationPartiallyVerified: {},
	model.VerificationSuspicious:        {},
	model.VerificationUnverified:        {},
	model.VerificationFailed:            {},
}

// List accepts ?status=a,b&offset=&limit=.
func (h *DatasetHandler) List(c *gin.Context) {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		handleError(c, err)
		return
	}
	offset, err := queryUint(c, "offset", 0)
	if err != nil {
		handleError(c, err)
		return
	}
	limit, err := queryUint(c, "limit", 100)
	if err != nil {
		handleError(c, err)
		return
	}
	items, total, err := h.pipeline.ListDatasets(c.Request.Context(), c.Param("project_id"), service.DatasetQuery{
		Statuses: statuses,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, items, total)
}

func parseStatuses(raw string) ([]model.VerificationStatus, error) {
	var out []model.VerificationStatus
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		status := model.VerificationStatus(part)
		if _, ok := knownStatuses[status]; !ok {
			return nil, fmt.Errorf("status %q: %w", part, appErr.ErrInvalid)
		}
		out = append(out, status)
	}
	return out, nil
}
