package donation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/handler"
	"github.com/jwalitptl/bloodbank/internal/middleware"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/service/donation"
)

type Handler struct {
	svc donation.DonationServicer
}

func NewHandler(svc donation.DonationServicer) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	donations := r.Group("/donations")
	{
		donations.POST("/schedules", h.CreateSchedule)
		donations.POST("/check-in", h.CheckIn)

		registrations := donations.Group("/registrations")
		registrations.POST("", h.Register)
		registrations.GET("/:id", h.Get)
		registrations.PUT("/:id/record", h.Record)
		registrations.POST("/:id/complete", h.Complete)
		registrations.POST("/:id/cancel", h.Cancel)
	}
}

func registrationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid registration ID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	var req model.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	schedule, err := h.svc.CreateSchedule(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(schedule))
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	reg, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(reg))
}

func (h *Handler) CheckIn(c *gin.Context) {
	var req model.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	reg, err := h.svc.CheckIn(c.Request.Context(), req.NationalID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(reg))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := registrationID(c)
	if !ok {
		return
	}

	reg, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(reg))
}

func (h *Handler) Record(c *gin.Context) {
	id, ok := registrationID(c)
	if !ok {
		return
	}

	var req model.RecordDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	record, err := h.svc.RecordDonation(c.Request.Context(), id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(record))
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := registrationID(c)
	if !ok {
		return
	}

	actorID, _ := middleware.UserID(c)
	result, err := h.svc.Complete(c.Request.Context(), id, actorID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := registrationID(c)
	if !ok {
		return
	}

	actorID, _ := middleware.UserID(c)
	reg, err := h.svc.Cancel(c.Request.Context(), id, actorID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(reg))
}
