package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/freightdesk/internal/orgcontext"
)

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOrgActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrgActionWithContext(c *gin.Context, object string, action string) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}

	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}

	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	err := s.authzSvc.Authorize(ctx, actor, orgID.String(), object, action)
	s.obsMetrics.RecordAuthorization(ctx, object, action, err == nil)
	return err
}
