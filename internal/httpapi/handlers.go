package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"voice-platform/internal/audit"
	"voice-platform/internal/auth"
	"voice-platform/internal/calls"
	"voice-platform/internal/reporting"
	"voice-platform/internal/users"

	"github.com/gin-gonic/gin"
)

// DeviceRegistry stores push targets for the authenticated user.
type DeviceRegistry interface {
	RegisterPushTarget(ctx context.Context, t users.PushTarget) error
}

// CallHistory lists the recorded transitions of a call.
type CallHistory interface {
	History(ctx context.Context, callID string) ([]audit.Event, error)
}

// Realtime upgrades a request into the user's real-time channel.
type Realtime interface {
	Serve(userID string, w http.ResponseWriter, r *http.Request)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal services, return JSON.
type Handlers struct {
	Calls    *calls.Service
	Reports  *reporting.Service
	History  CallHistory
	Devices  DeviceRegistry
	Realtime Realtime
}

// Register mounts the authenticated routes on g.
func (h Handlers) Register(g *gin.RouterGroup) {
	cg := g.Group("/calls")
	{
		cg.POST("", h.InitiateCall)
		cg.GET("/active", h.ActiveCalls)
		cg.GET("/summary", h.CallsSummary)
		cg.GET("/:id", h.GetCall)
		cg.GET("/:id/history", h.GetCallHistory)
		cg.POST("/:id/ring", h.RingCall)
		cg.POST("/:id/accept", h.AcceptCall)
		cg.POST("/:id/reject", h.RejectCall)
		cg.POST("/:id/end", h.EndCall)
		cg.POST("/:id/recording", h.ToggleRecording)
		cg.POST("/:id/heartbeat", h.Heartbeat)
	}
	g.POST("/devices", h.RegisterDevice)
	g.GET("/ws", h.Connect)
}

// --- Calls ---

type initiateRequest struct {
	ToPhoneNumber string         `json:"to_phone_number"`
	CallType      calls.CallType `json:"call_type"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (h Handlers) InitiateCall(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.ToPhoneNumber == "" {
		badRequest(c, "to_phone_number required")
		return
	}
	if req.CallType == "" {
		req.CallType = calls.CallTypeVoice
	}

	join, err := h.Calls.Initiate(c.Request.Context(), calls.InitiateRequest{
		FromUserID:    uid,
		ToPhoneNumber: req.ToPhoneNumber,
		CallType:      req.CallType,
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, join)
}

func (h Handlers) ActiveCalls(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	list, err := h.Calls.GetActiveCalls(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []calls.CallSession{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

func (h Handlers) GetCall(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	sess, err := h.Calls.GetCall(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetCallHistory returns the call's status transitions. Only participants
// may read them.
func (h Handlers) GetCallHistory(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	if h.History == nil {
		writeError(c, errors.New("call history not configured"))
		return
	}
	sess, err := h.Calls.GetCall(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	list, err := h.History.History(c.Request.Context(), sess.CallID)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"call_id": sess.CallID, "events": list})
}

func (h Handlers) RingCall(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	sess, err := h.Calls.Ring(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type acceptRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h Handlers) AcceptCall(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	var req acceptRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	join, err := h.Calls.Accept(c.Request.Context(), c.Param("id"), uid, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, join)
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h Handlers) RejectCall(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	var req rejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	sess, err := h.Calls.Reject(c.Request.Context(), c.Param("id"), uid, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type endRequest struct {
	QualityScore *int `json:"quality_score,omitempty"`
}

func (h Handlers) EndCall(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	var req endRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	sess, err := h.Calls.End(c.Request.Context(), c.Param("id"), uid, req.QualityScore)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type recordingRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h Handlers) ToggleRecording(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	var req recordingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		badRequest(c, "enabled required")
		return
	}
	out, err := h.Calls.ToggleRecording(c.Request.Context(), c.Param("id"), uid, *req.Enabled)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Heartbeat(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	if err := h.Calls.Heartbeat(c.Request.Context(), c.Param("id"), uid); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Reporting ---

const defaultSummaryWindow = 30 * 24 * time.Hour

func (h Handlers) CallsSummary(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		writeError(c, errors.New("reporting not configured"))
		return
	}

	to := time.Now().UTC()
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, "to must be RFC3339")
			return
		}
		to = t
	}
	from := to.Add(-defaultSummaryWindow)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, "from must be RFC3339")
			return
		}
		from = t
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		UserID: uid,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Devices ---

type deviceRequest struct {
	Token    string         `json:"token"`
	Platform users.Platform `json:"platform"`
}

func (h Handlers) RegisterDevice(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	if h.Devices == nil {
		writeError(c, errors.New("device registry not configured"))
		return
	}
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.Token == "" || !req.Platform.Valid() {
		badRequest(c, "token and a valid platform required")
		return
	}
	if err := h.Devices.RegisterPushTarget(c.Request.Context(), users.PushTarget{UserID: uid, Token: req.Token, Platform: req.Platform}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// --- Real-time channel ---

func (h Handlers) Connect(c *gin.Context) {
	uid, ok := h.identity(c)
	if !ok {
		return
	}
	if h.Realtime == nil {
		writeError(c, errors.New("realtime not configured"))
		return
	}
	h.Realtime.Serve(uid, c.Writer, c.Request)
}

func (h Handlers) identity(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", false
	}
	return uid, true
}

// bindOptionalJSON accepts an empty body and reports false after writing a
// 400 for a malformed one.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid json")
		return false
	}
	return true
}
