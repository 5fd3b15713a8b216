package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) organizationMargin(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	window, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window"})
		return
	}

	result, err := s.margins.OrganizationMargin(c.Request.Context(), orgID, window)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) customerMargins(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	window, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window"})
		return
	}

	if raw := c.Query("customer_id"); raw != "" {
		customerID, perr := snowflake.ParseString(raw)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_customer_id"})
			return
		}
		result, err := s.margins.CustomerMargin(c.Request.Context(), orgID, customerID, window)
		if err != nil {
			s.abortError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	results, err := s.margins.CustomerMargins(c.Request.Context(), orgID, window)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": results})
}

func (s *Server) eventTypeMargins(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	window, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window"})
		return
	}

	if eventType := c.Query("event_type"); eventType != "" {
		result, err := s.margins.EventTypeMargin(c.Request.Context(), orgID, eventType, window)
		if err != nil {
			s.abortError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	results, err := s.margins.EventTypeMargins(c.Request.Context(), orgID, window)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_types": results})
}

func (s *Server) vendorCosts(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	window, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window"})
		return
	}

	breakdown, err := s.margins.VendorCostBreakdown(c.Request.Context(), orgID, window)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendors": breakdown})
}

func (s *Server) modelCosts(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	window, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window"})
		return
	}

	breakdown, err := s.margins.ModelCostBreakdown(c.Request.Context(), orgID, window)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": breakdown})
}
