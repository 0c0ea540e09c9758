package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/crmbilling/internal/authorization"
	obscontext "github.com/smallbiznis/crmbilling/internal/observability/context"
)

// Identity headers are set by the upstream auth gateway.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderCompanyID = "X-Company-ID"

	contextPrincipalKey = "principal"
)

// PrincipalRequired resolves the caller from the gateway headers and
// propagates it to the request context for logging and activity entries.
func (s *Server) PrincipalRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := authorization.Principal{
			ActorID:   strings.TrimSpace(c.GetHeader(HeaderActorID)),
			Role:      authorization.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))),
			CompanyID: strings.TrimSpace(c.GetHeader(HeaderCompanyID)),
		}
		if p.ActorID == "" {
			AbortWithError(c, authorization.ErrInvalidActor)
			return
		}
		if p.Role == "" {
			AbortWithError(c, authorization.ErrInvalidRole)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), string(p.Role), p.ActorID)
		if p.CompanyID != "" {
			ctx = obscontext.WithCompanyID(ctx, p.CompanyID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, p)
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (authorization.Principal, bool) {
	v, ok := c.Get(contextPrincipalKey)
	if !ok {
		return authorization.Principal{}, false
	}
	p, ok := v.(authorization.Principal)
	return p, ok
}
