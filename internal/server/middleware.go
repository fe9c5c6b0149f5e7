package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/freightdesk/internal/auditcontext"
	"github.com/smallbiznis/freightdesk/internal/authorization"
	obscontext "github.com/smallbiznis/freightdesk/internal/observability/context"
	"github.com/smallbiznis/freightdesk/internal/orgcontext"
)

const (
	HeaderOrg       = "X-Org-ID"
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	contextActorKey = "actor"
)

// OrgContext resolves the organization from X-Org-ID, falling back to the
// configured default organization.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		var orgID snowflake.ID
		if raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil || parsed == 0 {
				AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid organization"))
				return
			}
			orgID = parsed
		} else if s.cfg.DefaultOrgID != 0 {
			orgID = snowflake.ID(s.cfg.DefaultOrgID)
		}
		if orgID == 0 {
			AbortWithError(c, newValidationError("org_id", "invalid_org_id", "organization is required"))
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorContext reads the caller asserted by the upstream auth gateway.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := authorization.Actor{
			ID:   strings.TrimSpace(c.GetHeader(HeaderActorID)),
			Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
		}
		if actor.Role == "" || (actor.ID == "" && actor.Role != authorization.RoleSystem) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actorType, actorID := "user", actor.ID
		if actor.Role == authorization.RoleSystem {
			actorType, actorID = "system", ""
		}

		c.Set(contextActorKey, actor)
		ctx := auditcontext.WithActor(c.Request.Context(), actorType, actorID)
		ctx = obscontext.WithActor(ctx, actorType, actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (authorization.Actor, bool) {
	if c == nil {
		return authorization.Actor{}, false
	}
	value, ok := c.Get(contextActorKey)
	if !ok {
		return authorization.Actor{}, false
	}
	actor, ok := value.(authorization.Actor)
	return actor, ok
}

// limitWrites throttles record mutations per organization.
func (s *Server) limitWrites() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}
		allowed, retryAfter := s.limiter.AllowOrg(c.Request.Context(), orgID.String())
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
