package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/handler"
	"github.com/jwalitptl/bloodbank/internal/model"
)

type History interface {
	History(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
}

type Handler struct {
	service History
}

func NewHandler(service History) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/:type/:id", h.GetEntityLogs)
	}
}

// GetEntityLogs returns the audit trail of one entity, as JSON or, with
// ?format=csv, as a CSV download.
func (h *Handler) GetEntityLogs(c *gin.Context) {
	entityType := c.Param("type")
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid entity_id"))
		return
	}

	logs, err := h.service.History(c.Request.Context(), entityType, entityID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	if c.Query("format") == "csv" {
		h.writeCSV(c, entityType, entityID, logs)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) writeCSV(c *gin.Context, entityType string, entityID uuid.UUID, logs []*model.AuditLog) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=audit_%s_%s.csv", entityType, entityID))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"created_at", "user_id", "action", "changes", "metadata", "ip_address"})
	for _, l := range logs {
		_ = w.Write([]string{
			l.CreatedAt.Format(time.RFC3339),
			l.UserID.String(),
			l.Action,
			string(l.Changes),
			string(l.Metadata),
			l.IPAddress,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}
