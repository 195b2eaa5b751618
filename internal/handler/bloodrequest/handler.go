package bloodrequest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/handler"
	"github.com/jwalitptl/bloodbank/internal/middleware"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/service/bloodrequest"
)

// Broadcaster sends an emergency broadcast for an open request.
type Broadcaster interface {
	EmergencyBroadcast(ctx context.Context, requestID, actorID uuid.UUID) (*model.BroadcastResult, bool, error)
}

type Handler struct {
	svc         bloodrequest.BloodRequestServicer
	broadcaster Broadcaster
	auth        *middleware.AuthMiddleware
}

func NewHandler(svc bloodrequest.BloodRequestServicer, broadcaster Broadcaster, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, broadcaster: broadcaster, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	requests := r.Group("/blood-requests")
	{
		requests.POST("", h.Create)
		requests.GET("", h.List)
		requests.GET("/:id", h.Get)
		requests.POST("/:id/approve", h.Approve)
		requests.POST("/:id/reject", h.Reject)
		requests.POST("/:id/allocate", h.Allocate)
		requests.POST("/:id/broadcast", h.Broadcast)
		requests.PUT("/:id/status", h.auth.RequireRole(model.UserRoleAdmin), h.UpdateStatus)
	}
}

func requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid blood request ID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateBloodRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	staffID, _ := middleware.UserID(c)
	created, err := h.svc.Create(c.Request.Context(), staffID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.BloodRequestFilters{
		Status:    model.BloodRequestStatus(c.Query("status")),
		BloodType: model.BloodType(c.Query("blood_type")),
	}
	requests, err := h.svc.List(c.Request.Context(), filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(requests))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	req, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(req))
}

// Approve answers 200 even when the follow-up allocation failed; the
// approval itself was committed and the allocation can be retried.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	approverID, _ := middleware.UserID(c)
	result, err := h.svc.Approve(c.Request.Context(), id, approverID)
	if err != nil && result == nil {
		handler.RespondError(c, err)
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusOK, &handler.Response{
			Status:  "success",
			Message: "approved; allocation failed and can be retried",
			Data:    result,
		})
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Reject(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	var req model.RejectBloodRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	rejecterID, _ := middleware.UserID(c)
	rejected, err := h.svc.Reject(c.Request.Context(), id, rejecterID, req.Reason)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rejected))
}

func (h *Handler) Allocate(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	result, err := h.svc.Allocate(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Broadcast(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	actorID, _ := middleware.UserID(c)
	result, deduped, err := h.broadcaster.EmergencyBroadcast(c.Request.Context(), id, actorID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if deduped {
		c.JSON(http.StatusOK, &handler.Response{
			Status:  "success",
			Message: "broadcast already sent recently",
			Data:    result,
		})
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(result))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	var req model.UpdateBloodRequestStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	actorID, _ := middleware.UserID(c)
	updated, err := h.svc.UpdateStatus(c.Request.Context(), id, actorID, req.Status)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}
