package backfill

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stridelab/clubhouse/pkg/clubhouse/models"
)

// Handler exposes the backfill trigger to admin tooling
type Handler struct {
	engine *Engine
}

// NewHandler creates a new backfill handler
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// BackfillRequest represents a backfill trigger for one club
type BackfillRequest struct {
	CreatorID    string               `json:"creatorId" binding:"required"`
	RoundIDs     []string             `json:"roundIds"`
	Participants []models.UserSummary `json:"participants" binding:"required"`
}

// BackfillResponse reports how many membership records a run wrote
type BackfillResponse struct {
	ClubID string `json:"clubId"`
	Added  int    `json:"added"`
}

// PartialFailureResponse reports a run that stopped partway; completed chunks
// stay committed and the run can be retried with the same participant list
type PartialFailureResponse struct {
	Error           string `json:"error"`
	FailedChunk     int    `json:"failedChunk"`
	TotalChunks     int    `json:"totalChunks"`
	CommittedChunks int    `json:"committedChunks"`
	RecordsWritten  int    `json:"recordsWritten"`
}

// Run triggers a backfill for a club
func (h *Handler) Run(c *gin.Context) {
	clubID := c.Param("id")

	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.engine.Backfill(c.Request.Context(), clubID, req.CreatorID, req.RoundIDs, req.Participants)
	if err != nil {
		var partial *PartialError
		if errors.As(err, &partial) {
			c.JSON(http.StatusInternalServerError, PartialFailureResponse{
				Error:           partial.Error(),
				FailedChunk:     partial.FailedChunk,
				TotalChunks:     partial.TotalChunks,
				CommittedChunks: partial.CommittedChunks,
				RecordsWritten:  partial.RecordsWritten,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Backfill failed"})
		return
	}

	c.JSON(http.StatusOK, BackfillResponse{ClubID: clubID, Added: added})
}

// RegisterRoutes registers backfill routes on an admin route group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/clubs/:id/backfill", h.Run)
}
