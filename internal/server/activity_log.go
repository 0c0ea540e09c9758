package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/crmbilling/internal/activity/domain"
)

func (s *Server) ListActivityLogs(c *gin.Context) {
	var query activitydomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.activitySvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Logs, "page_info": resp.PageInfo})
}
