package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunExpirySweep triggers the expiry sweep out of schedule. A sweep already
// holding the lock yields 409.
func (s *Server) RunExpirySweep(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	result, err := s.scheduler.RunExpirySweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("manual expiry sweep finished",
		zap.String("actor_id", actorID(c)),
		zap.Int("deactivated", result.Deactivated),
		zap.Int("failed", result.Failed),
	)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RunReminderSweep(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	result, err := s.scheduler.RunReminderSweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("manual reminder sweep finished",
		zap.String("actor_id", actorID(c)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)
	c.JSON(http.StatusOK, gin.H{"data": result})
}
