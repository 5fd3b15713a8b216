package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/profitlens/profitlens/internal/invoice/domain"
	orgdomain "github.com/profitlens/profitlens/internal/organization/domain"
	ratedomain "github.com/profitlens/profitlens/internal/rate/domain"
)

type createOrganizationRequest struct {
	Name                    string `json:"name"`
	MarginAlertThresholdBps int64  `json:"margin_alert_threshold_bps"`
	MarginAlertPeriodDays   int    `json:"margin_alert_period_days"`
}

func (s *Server) createOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	org, err := s.orgs.Create(c.Request.Context(), orgdomain.CreateOrganizationRequest{
		Name:                    req.Name,
		MarginAlertThresholdBps: req.MarginAlertThresholdBps,
		MarginAlertPeriodDays:   req.MarginAlertPeriodDays,
	})
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (s *Server) listOrganizations(c *gin.Context) {
	orgs, err := s.orgs.List(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

type updateSettingsRequest struct {
	MarginAlertThresholdBps *int64  `json:"margin_alert_threshold_bps"`
	MarginAlertPeriodDays   *int    `json:"margin_alert_period_days"`
	DriftThreshold          *string `json:"drift_threshold"`
}

func (s *Server) updateOrganizationSettings(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_organization_id"})
		return
	}
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	org, err := s.orgs.UpdateSettings(c.Request.Context(), id, orgdomain.UpdateSettingsRequest{
		MarginAlertThresholdBps: req.MarginAlertThresholdBps,
		MarginAlertPeriodDays:   req.MarginAlertPeriodDays,
		DriftThreshold:          req.DriftThreshold,
	})
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

type upsertRateRequest struct {
	Vendor          string `json:"vendor_name"`
	Model           string `json:"model_name"`
	InputRatePer1K  string `json:"input_rate_per_1k"`
	OutputRatePer1K string `json:"output_rate_per_1k"`
	UnitType        string `json:"unit_type"`
}

func (s *Server) upsertGlobalRate(c *gin.Context) {
	s.upsertRate(c, nil)
}

func (s *Server) upsertOrgRate(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	s.upsertRate(c, &orgID)
}

func (s *Server) upsertRate(c *gin.Context, orgID *snowflake.ID) {
	var req upsertRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	rate, err := s.rates.Upsert(c.Request.Context(), ratedomain.UpsertRateRequest{
		OrgID:           orgID,
		Vendor:          req.Vendor,
		Model:           req.Model,
		InputRatePer1K:  req.InputRatePer1K,
		OutputRatePer1K: req.OutputRatePer1K,
		UnitType:        req.UnitType,
	})
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rate)
}

func (s *Server) listGlobalRates(c *gin.Context) {
	rates, err := s.rates.List(c.Request.Context(), nil)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

func (s *Server) listOrgRates(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	rates, err := s.rates.List(c.Request.Context(), &orgID)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

func (s *Server) syncPricing(c *gin.Context) {
	report, err := s.pricing.Sync(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) listDrifts(c *gin.Context) {
	drifts, err := s.pricing.ListPending(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drifts": drifts})
}

func (s *Server) applyDrift(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_drift_id"})
		return
	}
	drift, err := s.pricing.Apply(c.Request.Context(), id)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, drift)
}

func (s *Server) ignoreDrift(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_drift_id"})
		return
	}
	drift, err := s.pricing.Ignore(c.Request.Context(), id)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, drift)
}

type subscriptionRevenueRequest struct {
	// Revenues maps billing customer IDs to monthly subscription cents. The
	// snapshot replaces previous figures wholesale.
	Revenues map[string]int64 `json:"revenues"`
}

func (s *Server) replaceSubscriptionRevenue(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	var req subscriptionRevenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	if err := s.customers.ReplaceSubscriptionRevenue(c.Request.Context(), orgID, req.Revenues); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": len(req.Revenues)})
}

type upsertInvoiceRequest struct {
	ProviderInvoiceID string    `json:"provider_invoice_id"`
	BillingCustomerID string    `json:"billing_customer_id"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	PaidAt            time.Time `json:"paid_at"`
}

func (s *Server) upsertInvoice(c *gin.Context) {
	orgID, ok := orgFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_org"})
		return
	}
	var req upsertInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if req.ProviderInvoiceID == "" || req.AmountCents < 0 || !req.PeriodEnd.After(req.PeriodStart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_invoice"})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	now := time.Now().UTC()
	invoice := &invoicedomain.ExternalInvoice{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		ProviderInvoiceID: req.ProviderInvoiceID,
		BillingCustomerID: req.BillingCustomerID,
		AmountCents:       req.AmountCents,
		Currency:          currency,
		PeriodStart:       req.PeriodStart.UTC(),
		PeriodEnd:         req.PeriodEnd.UTC(),
		PaidAt:            req.PaidAt.UTC(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.invoices.Upsert(c.Request.Context(), s.db, invoice); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}
