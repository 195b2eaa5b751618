package donor

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/handler"
	"github.com/jwalitptl/bloodbank/internal/middleware"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/service/eligibility"
)

type Donors interface {
	CreateDonor(ctx context.Context, actorID uuid.UUID, req *model.CreateDonorRequest) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type Handler struct {
	donors Donors
	finder eligibility.Finder
}

func NewHandler(donors Donors, finder eligibility.Finder) *Handler {
	return &Handler{donors: donors, finder: finder}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	donors := r.Group("/donors")
	{
		donors.POST("", h.Create)
		donors.GET("/eligible", h.Eligible)
		donors.GET("/:id", h.Get)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateDonorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	actorID, _ := middleware.UserID(c)
	donor, err := h.donors.CreateDonor(c.Request.Context(), actorID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(donor))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid donor ID"))
		return
	}

	donor, err := h.donors.GetUser(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if donor.Role != model.UserRoleDonor {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("donor not found"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(donor))
}

// Eligible lists donors who may give blood now and whose type is compatible
// with the requested recipient type.
func (h *Handler) Eligible(c *gin.Context) {
	bloodType := c.Query("blood_type")
	component := c.Query("component")
	if bloodType == "" || component == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("blood_type and component are required"))
		return
	}

	donors, err := h.finder.FindEligibleCompatibleDonors(c.Request.Context(), model.BloodType(bloodType), model.Component(component))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(donors))
}
