package handler

import (
	"net/http"

	"pmo-backend/internal/middleware"
	"pmo-backend/internal/service"
	"pmo-backend/pkg/apperror"
	"pmo-backend/pkg/pagination"
	"pmo-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ChangeRequestHandler struct {
	crService       service.ChangeRequestService
	approvalService service.ApprovalService
}

func NewChangeRequestHandler(crService service.ChangeRequestService, approvalService service.ApprovalService) *ChangeRequestHandler {
	return &ChangeRequestHandler{crService: crService, approvalService: approvalService}
}

func (h *ChangeRequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/change-requests")
	{
		requests.GET("", middleware.RequirePermission("change_requests.read"), h.List)
		requests.GET("/:id", middleware.RequirePermission("change_requests.read"), h.Get)
		requests.POST("", middleware.RequirePermission("change_requests.create"), h.Create)
		requests.POST("/:id/submit", middleware.RequirePermission("change_requests.submit"), h.Submit)
		requests.POST("/:id/decision", middleware.RequirePermission("change_requests.decide"), h.SubmitDecision)
		requests.GET("/:id/approvals", middleware.RequirePermission("change_requests.read"), h.GetApprovals)
	}
}

// Create registers a new change request in the intake lane
// @Summary      Create change request
// @Tags         change-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateChangeRequestRequest  true  "Change Request Payload"
// @Success      201      {object}  response.Response{data=service.ChangeRequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/change-requests [post]
func (h *ChangeRequestHandler) Create(c *gin.Context) {
	var req service.CreateChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.crService.Create(c.Request.Context(), contextOrgID(c), contextUserID(c), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// List returns change requests of the caller's organization
// @Summary      List change requests
// @Tags         change-requests
// @Produce      json
// @Security     BearerAuth
// @Param        lane             query  string  false  "Lane filter"
// @Param        decision_status  query  string  false  "Decision status filter"
// @Param        page             query  int     false  "Page number"
// @Param        limit            query  int     false  "Items per page"
// @Success      200  {object}  response.Response
// @Router       /api/change-requests [get]
func (h *ChangeRequestHandler) List(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.ChangeRequestFilter{
		Lane:           c.Query("lane"),
		DecisionStatus: c.Query("decision_status"),
		Page:           params.Page,
		Limit:          params.Limit,
	}

	requests, total, err := h.crService.List(c.Request.Context(), contextOrgID(c), filter)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   requests,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// Get returns one change request
// @Summary      Get change request
// @Tags         change-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Change Request ID"
// @Success      200  {object}  response.Response{data=service.ChangeRequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	result, err := h.crService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Submit moves a change request into review and registers its approval chain
// @Summary      Submit change request for approval
// @Tags         change-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                              true  "Change Request ID"
// @Param        payload  body      service.SubmitChangeRequestRequest  true  "Approval chain definition"
// @Success      200      {object}  response.Response{data=service.ChangeRequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/change-requests/{id}/submit [post]
func (h *ChangeRequestHandler) Submit(c *gin.Context) {
	var req service.SubmitChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.crService.Submit(c.Request.Context(), c.Param("id"), contextUserID(c), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// SubmitDecision records an approval or rejection on the pending step
// @Summary      Decide on the pending approval step
// @Description  Records the acting user's decision, directly or via an active delegation, and finalizes the change request when the chain completes.
// @Tags         change-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true  "Change Request ID"
// @Param        payload  body      service.SubmitDecisionRequest  true  "Decision payload"
// @Success      200      {object}  response.Response{data=service.DecisionResult}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/change-requests/{id}/decision [post]
func (h *ChangeRequestHandler) SubmitDecision(c *gin.Context) {
	var req service.SubmitDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.approvalService.SubmitDecision(c.Request.Context(), c.Param("id"), contextUserID(c), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetApprovals returns the chain status: steps, approvers, decisions, pending step
// @Summary      Get approval chain status
// @Tags         change-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Change Request ID"
// @Success      200  {object}  response.Response{data=service.ChainStatusResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/change-requests/{id}/approvals [get]
func (h *ChangeRequestHandler) GetApprovals(c *gin.Context) {
	result, err := h.approvalService.GetChainStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
