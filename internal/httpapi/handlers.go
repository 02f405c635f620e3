package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voicebot/internal/audit"
	"voicebot/internal/auth"
	"voicebot/internal/business"
	"voicebot/internal/calls"
	"voicebot/internal/onboarding"
	"voicebot/internal/rbac"
	"voicebot/internal/reporting"
	"voicebot/internal/usage"
	"voicebot/pkg/logger"
)

// Handlers serves the business-facing JSON API.
// Keep these thin: read the identity, call internal services, return JSON.
type Handlers struct {
	Businesses  BusinessReader
	Usage       UsageReader
	ActiveCalls LiveCounter
	Calls       LiveLister
	Reports     *reporting.Service
	Onboarding  InterviewStarter
	// Audit is optional; nil records nothing.
	Audit *audit.Service

	Now func() time.Time
}

type BusinessReader interface {
	Get(ctx context.Context, id string) (business.Business, error)
}

type UsageReader interface {
	Current(ctx context.Context, businessID string, limit int, at time.Time) (usage.Record, error)
}

type LiveCounter interface {
	Count(ctx context.Context, businessID string) (int64, error)
}

type LiveLister interface {
	ListLive(ctx context.Context, businessID string) ([]calls.Call, error)
}

type InterviewStarter interface {
	Start(ctx context.Context, businessID string) (onboarding.Interview, error)
}

// defaultReportWindow applies when a report request omits its range.
const defaultReportWindow = 30 * 24 * time.Hour

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func actor(c *gin.Context) audit.Actor {
	ctx := c.Request.Context()
	user, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	return audit.Actor{UserID: user, Role: role, IP: c.ClientIP()}
}

// recordSupportAccess audits every request made with a support token.
func (h Handlers) recordSupportAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		by := actor(c)
		if h.Audit != nil && rbac.IsSupport(by.Role) {
			bizID, _ := auth.BusinessID(c.Request.Context())
			if err := h.Audit.LogSupportAccess(c.Request.Context(), bizID, by, c.Request.Method+" "+c.FullPath()); err != nil {
				logger.FromGin(c).Warn("audit support access failed", "err", err)
			}
		}
		c.Next()
	}
}

func businessID(c *gin.Context) (string, bool) {
	id, err := auth.BusinessID(c.Request.Context())
	if err != nil || id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "business_id required"})
		return "", false
	}
	return id, true
}

type usageResponse struct {
	Month        string  `json:"month"`
	MinutesUsed  float64 `json:"minutes_used"`
	MinutesLimit int     `json:"minutes_limit"`
	Percent      float64 `json:"percent"`
	ActiveCalls  int64   `json:"active_calls"`
	Alerts       []int   `json:"alerts_sent"`
}

// GetUsage reports this month's minutes and the live call count.
func (h Handlers) GetUsage(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	biz, err := h.Businesses.Get(ctx, bizID)
	if errors.Is(err, business.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "business not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("load business failed", "business_id", bizID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "business lookup failed"})
		return
	}
	rec, err := h.Usage.Current(ctx, bizID, biz.Tier.MonthlyMinutes(), h.now())
	if err != nil {
		logger.FromGin(c).Error("load usage failed", "business_id", bizID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "usage lookup failed"})
		return
	}
	active, err := h.ActiveCalls.Count(ctx, bizID)
	if err != nil {
		logger.FromGin(c).Warn("count active calls failed", "business_id", bizID, "err", err)
	}

	alerts := []int{}
	for _, th := range usage.Thresholds {
		if rec.AlertSent(th) {
			alerts = append(alerts, th)
		}
	}
	c.JSON(http.StatusOK, usageResponse{
		Month:        rec.Month,
		MinutesUsed:  rec.MinutesUsed,
		MinutesLimit: rec.MinutesLimit,
		Percent:      usage.RoundTotal(rec.Percent()),
		ActiveCalls:  active,
		Alerts:       alerts,
	})
}

type liveCall struct {
	ID              string    `json:"id"`
	CallSid         string    `json:"call_sid"`
	CallerNumber    string    `json:"caller_number"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// ListLiveCalls returns calls still in progress, newest first.
func (h Handlers) ListLiveCalls(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	rows, err := h.Calls.ListLive(c.Request.Context(), bizID)
	if err != nil {
		logger.FromGin(c).Error("list live calls failed", "business_id", bizID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "live calls lookup failed"})
		return
	}
	now := h.now()
	out := make([]liveCall, 0, len(rows))
	for _, row := range rows {
		out = append(out, liveCall{
			ID:              row.ID,
			CallSid:         row.ProviderCallSID,
			CallerNumber:    row.CallerNumber,
			StartedAt:       row.CreatedAt,
			DurationSeconds: int(now.Sub(row.CreatedAt).Seconds()),
		})
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

// parseBound accepts RFC 3339 timestamps or plain dates.
func parseBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// CallsReport summarizes the business's calls in [from, to). Both bounds
// default to the trailing 30 days.
func (h Handlers) CallsReport(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	to := h.now().UTC()
	from := to.Add(-defaultReportWindow)
	if s := c.Query("to"); s != "" {
		t, err := parseBound(s)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		to = t
		from = to.Add(-defaultReportWindow)
	}
	if s := c.Query("from"); s != "" {
		t, err := parseBound(s)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		from = t
	}

	sum, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		BusinessID: bizID,
		Range:      reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls report failed", "business_id", bizID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// StartOnboarding places the setup interview call to the owner.
// RBAC: owner (or support).
func (h Handlers) StartOnboarding(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	iv, err := h.Onboarding.Start(c.Request.Context(), bizID)
	switch {
	case err == nil:
	case errors.Is(err, business.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "business not found"})
		return
	case errors.Is(err, onboarding.ErrNoOwnerPhone):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "owner phone required"})
		return
	default:
		logger.FromGin(c).Error("start onboarding failed", "business_id", bizID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "onboarding call failed"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogOnboardingStarted(c.Request.Context(), bizID, actor(c), iv.ID, iv.ProviderCallSID); err != nil {
			logger.FromGin(c).Warn("audit onboarding start failed", "err", err)
		}
	}
	c.JSON(http.StatusAccepted, gin.H{
		"onboarding_id": iv.ID,
		"call_sid":      iv.ProviderCallSID,
		"status":        iv.Status,
	})
}

// Register mounts the API on g, which must already verify the bearer token.
func (h Handlers) Register(g gin.IRoutes) {
	g.Use(rbac.RequireBusiness(), h.recordSupportAccess())
	anyone := rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleStaff)
	g.GET("/usage", anyone, h.GetUsage)
	g.GET("/calls/live", anyone, h.ListLiveCalls)
	g.GET("/reports/calls", anyone, h.CallsReport)
	g.POST("/onboarding/start", rbac.RequireAnyRole(rbac.RoleOwner), h.StartOnboarding)
}
