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

type DelegationHandler struct {
	delegationService service.DelegationService
}

func NewDelegationHandler(delegationService service.DelegationService) *DelegationHandler {
	return &DelegationHandler{delegationService: delegationService}
}

func (h *DelegationHandler) RegisterRoutes(router *gin.RouterGroup) {
	delegations := router.Group("/api/delegations")
	{
		delegations.GET("", middleware.RequirePermission("delegations.read"), h.List)
		delegations.POST("", middleware.RequirePermission("delegations.manage"), h.Create)
		delegations.DELETE("/:id", middleware.RequirePermission("delegations.manage"), h.Revoke)
	}

	approvers := router.Group("/api/approvers")
	{
		approvers.GET("", middleware.RequirePermission("change_requests.read"), h.ListApprovers)
		approvers.POST("", middleware.RequirePermission("approvers.manage"), h.CreateApprover)
	}
}

// Create registers a holiday-cover delegation
// @Summary      Create delegation
// @Tags         delegations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateDelegationRequest  true  "Delegation Payload"
// @Success      201      {object}  response.Response{data=service.DelegationResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/delegations [post]
func (h *DelegationHandler) Create(c *gin.Context) {
	var req service.CreateDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.delegationService.CreateDelegation(c.Request.Context(), contextOrgID(c), contextUserID(c), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// List returns the organization's delegations
func (h *DelegationHandler) List(c *gin.Context) {
	params := pagination.Parse(c)

	delegations, total, err := h.delegationService.ListDelegations(c.Request.Context(), contextOrgID(c), params.Page, params.Limit)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   delegations,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// Revoke deactivates a delegation
func (h *DelegationHandler) Revoke(c *gin.Context) {
	if err := h.delegationService.RevokeDelegation(c.Request.Context(), contextOrgID(c), contextUserID(c), c.Param("id")); err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Delegation revoked"))
}

// ListApprovers returns the organization's active approver principals
func (h *DelegationHandler) ListApprovers(c *gin.Context) {
	approvers, err := h.delegationService.ListApprovers(c.Request.Context(), contextOrgID(c))
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, approvers))
}

// CreateApprover registers a named approver slot
func (h *DelegationHandler) CreateApprover(c *gin.Context) {
	var req service.CreateApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.delegationService.CreateApprover(c.Request.Context(), contextOrgID(c), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}
