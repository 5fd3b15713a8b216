package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	margindomain "github.com/profitlens/profitlens/internal/margin/domain"
	"github.com/profitlens/profitlens/internal/orgcontext"
)

const orgHeader = "X-Org-ID"

// requireOrg authenticates the tenant: the org header must parse and name an
// existing organization. The resolved ID rides the request context so every
// downstream query is tenant-scoped.
func (s *Server) requireOrg() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(orgHeader))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_org_header"})
			return
		}
		orgID, err := snowflake.ParseString(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_org_header"})
			return
		}
		if _, err := s.orgs.Get(c.Request.Context(), orgID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown_organization"})
			return
		}

		c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), orgID))
		c.Next()
	}
}

func orgFromRequest(c *gin.Context) (snowflake.ID, bool) {
	return orgcontext.OrgIDFromContext(c.Request.Context())
}

// parseWindow reads optional start/end query params, accepting RFC 3339 or a
// bare date. Both must be present to form a window.
func parseWindow(c *gin.Context) (*margindomain.Window, error) {
	startRaw := strings.TrimSpace(c.Query("start"))
	endRaw := strings.TrimSpace(c.Query("end"))
	if startRaw == "" || endRaw == "" {
		return nil, nil
	}

	start, err := parseTime(startRaw)
	if err != nil {
		return nil, err
	}
	end, err := parseTime(endRaw)
	if err != nil {
		return nil, err
	}
	return &margindomain.Window{Start: start, End: end}, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
