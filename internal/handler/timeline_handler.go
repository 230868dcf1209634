package handler

import (
	"net/http"

	"pmo-backend/internal/middleware"
	"pmo-backend/internal/service"
	"pmo-backend/pkg/apperror"
	"pmo-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type TimelineHandler struct {
	timelineService service.TimelineService
}

func NewTimelineHandler(timelineService service.TimelineService) *TimelineHandler {
	return &TimelineHandler{timelineService: timelineService}
}

func (h *TimelineHandler) RegisterRoutes(router *gin.RouterGroup) {
	timeline := router.Group("/api/timeline")
	{
		timeline.GET("", middleware.RequirePermission("timeline.read"), h.List)
	}
}

// List returns the organization's governance event feed, newest first
// @Summary      Get timeline
// @Tags         timeline
// @Produce      json
// @Security     BearerAuth
// @Param        change_request_id  query  string  false  "Narrow feed to one change request"
// @Param        page               query  int     false  "Page number"
// @Param        limit              query  int     false  "Items per page"
// @Success      200  {object}  response.Response{data=[]service.TimelineEventResponse}
// @Router       /api/timeline [get]
func (h *TimelineHandler) List(c *gin.Context) {
	params := pagination.Parse(c)

	events, total, err := h.timelineService.GetTimeline(c.Request.Context(), contextOrgID(c), c.Query("change_request_id"), params.Page, params.Limit)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   events,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}
