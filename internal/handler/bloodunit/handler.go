package bloodunit

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/handler"
	"github.com/jwalitptl/bloodbank/internal/middleware"
	"github.com/jwalitptl/bloodbank/internal/model"
)

type Inventory interface {
	Intake(ctx context.Context, actorID uuid.UUID, req *model.CreateBloodUnitRequest) (*model.BloodUnit, error)
	Get(ctx context.Context, id uuid.UUID) (*model.BloodUnit, error)
	List(ctx context.Context, filters *model.BloodUnitFilters) ([]*model.BloodUnit, error)
	Available(ctx context.Context, bloodType model.BloodType, component model.Component) ([]*model.BloodUnit, error)
	Discard(ctx context.Context, id, actorID uuid.UUID) (*model.BloodUnit, error)
}

type Handler struct {
	svc Inventory
}

func NewHandler(svc Inventory) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	units := r.Group("/blood-units")
	{
		units.POST("", h.Intake)
		units.GET("", h.List)
		units.GET("/:id", h.Get)
		units.POST("/:id/discard", h.Discard)
	}
}

func unitID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid blood unit ID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Intake(c *gin.Context) {
	var req model.CreateBloodUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	actorID, _ := middleware.UserID(c)
	unit, err := h.svc.Intake(c.Request.Context(), actorID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(unit))
}

// List serves the available inventory view when both blood_type and
// component are given, and a filtered listing otherwise.
func (h *Handler) List(c *gin.Context) {
	bloodType := model.BloodType(c.Query("blood_type"))
	component := model.Component(c.Query("component"))

	var (
		units []*model.BloodUnit
		err   error
	)
	if bloodType != "" && component != "" && c.Query("status") == "" {
		units, err = h.svc.Available(c.Request.Context(), bloodType, component)
	} else {
		units, err = h.svc.List(c.Request.Context(), &model.BloodUnitFilters{
			BloodType: bloodType,
			Component: component,
			Status:    model.BloodUnitStatus(c.Query("status")),
		})
	}
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(units))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := unitID(c)
	if !ok {
		return
	}

	unit, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(unit))
}

func (h *Handler) Discard(c *gin.Context) {
	id, ok := unitID(c)
	if !ok {
		return
	}

	actorID, _ := middleware.UserID(c)
	unit, err := h.svc.Discard(c.Request.Context(), id, actorID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(unit))
}
