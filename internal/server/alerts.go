package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) listAlerts(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	alerts, err := s.alerts.ListOpen(c.Request.Context(), orgID)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_alert_id"})
		return
	}

	// Body is optional; an empty acknowledgement is still an acknowledgement.
	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
		Notes          string `json:"notes"`
	}
	_ = c.ShouldBindJSON(&req)

	alert, err := s.alerts.Acknowledge(c.Request.Context(), orgID, id, req.AcknowledgedBy, req.Notes)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}
