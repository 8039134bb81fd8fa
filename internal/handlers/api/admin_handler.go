package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/matchguard/matchguard/internal/auth"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/sessions"
	"github.com/matchguard/matchguard/model"
)

const defaultDashboardWindow = 24 * time.Hour

// AdminHandler serves the security dashboard and moderation actions.
// Source IPs are masked unless the caller holds admin:write.
type AdminHandler struct {
	policy         *auth.Policy
	eventService   EventService
	lockoutService LockoutService
	deviceService  DeviceService
}

type resolveEventRequest struct {
	Action string `json:"action" validate:"required,max=512"`
}

type lockUserRequest struct {
	Reason   string `json:"reason" validate:"required,max=128"`
	Duration int    `json:"durationMinutes" validate:"min=0"` // 0 locks indefinitely
}

type flagUserRequest struct {
	Reason string `json:"reason" validate:"required,max=128"`
}

type fraudReportRequest struct {
	UserID   uint   `json:"userId" validate:"required"`
	DeviceID uint   `json:"deviceId" validate:"required"`
	Note     string `json:"note" validate:"max=512"`
}

// window parses the since/until query range, defaulting to the last day.
func window(ctx *fiber.Ctx) (time.Time, time.Time) {
	until := time.Now()
	since := until.Add(-defaultDashboardWindow)
	if raw := ctx.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		}
	}
	if raw := ctx.Query("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			until = t
		}
	}
	return since, until
}

func (h *AdminHandler) canSeeRawIPs(ctx *fiber.Ctx) bool {
	return h.policy.Allow(sessions.Get(ctx).Role, auth.CapAdminWrite)
}

func maskEventIPs(rows []*model.SecurityEvent) []*model.SecurityEvent {
	out := make([]*model.SecurityEvent, len(rows))
	for i, row := range rows {
		cp := *row
		cp.IPAddress = events.MaskIP(cp.IPAddress)
		out[i] = &cp
	}
	return out
}

func (h *AdminHandler) GetOverview(ctx *fiber.Ctx) error {
	since, until := window(ctx)
	overview, err := h.eventService.Overview(ctx.Context(), since, until)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(overview))
}

func (h *AdminHandler) GetEvents(ctx *fiber.Ctx) error {
	since, until := window(ctx)
	filter := events.Filter{
		EventType: events.EventType(ctx.Query("type")),
		Severity:  events.Severity(ctx.Query("severity")),
		Since:     since,
		Until:     until,
	}
	if raw := ctx.Query("userId"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.UserID = uint(id)
		}
	}
	if raw := ctx.Query("resolved"); raw != "" {
		resolved := raw == "true"
		filter.Resolved = &resolved
	}
	page := events.Page{
		Offset: ctx.QueryInt("offset", 0),
		Limit:  ctx.QueryInt("limit", 50),
	}

	rows, total, err := h.eventService.Query(ctx.Context(), filter, page)
	if err != nil {
		return err
	}
	if !h.canSeeRawIPs(ctx) {
		rows = maskEventIPs(rows)
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"events": rows,
		"total":  total,
	}))
}

func (h *AdminHandler) GetTopThreats(ctx *fiber.Ctx) error {
	since, until := window(ctx)
	threats, err := h.eventService.TopThreats(ctx.Context(), since, until, ctx.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(threats))
}

func (h *AdminHandler) GetRiskRanking(ctx *fiber.Ctx) error {
	since, until := window(ctx)
	ranking, err := h.eventService.RiskRanking(ctx.Context(), since, until, ctx.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(ranking))
}

func (h *AdminHandler) GetBlockedIPs(ctx *fiber.Ctx) error {
	since, until := window(ctx)
	blocked, err := h.eventService.BlockedIPs(ctx.Context(), since, until)
	if err != nil {
		return err
	}
	if !h.canSeeRawIPs(ctx) {
		for i := range blocked {
			blocked[i].IPAddress = events.MaskIP(blocked[i].IPAddress)
		}
	}
	return ctx.JSON(NewDataResponse(blocked))
}

func (h *AdminHandler) PostResolveEvent(ctx *fiber.Ctx) error {
	eventID, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid event id")
	}
	var req resolveEventRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := h.eventService.Resolve(ctx.Context(), eventID, req.Action, currentUserID(ctx)); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "resolved"}))
}

func (h *AdminHandler) PostLockUser(ctx *fiber.Ctx) error {
	userID, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
	}
	var req lockUserRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	duration := time.Duration(req.Duration) * time.Minute
	if err := h.lockoutService.Lock(ctx.Context(), uint(userID), req.Reason, duration, ctx.IP()); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "locked"}))
}

func (h *AdminHandler) PostUnlockUser(ctx *fiber.Ctx) error {
	userID, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
	}
	if err := h.lockoutService.Unlock(ctx.Context(), uint(userID), "admin", ctx.IP()); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "unlocked"}))
}

func (h *AdminHandler) PostFlagUser(ctx *fiber.Ctx) error {
	userID, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
	}
	var req flagUserRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := h.lockoutService.Flag(ctx.Context(), uint(userID), req.Reason, ctx.IP()); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "flagged"}))
}

func (h *AdminHandler) GetLockHistory(ctx *fiber.Ctx) error {
	userID, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
	}
	history, err := h.lockoutService.History(ctx.Context(), uint(userID), ctx.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(history))
}

// PostFraudReport records a confirmed fraud report against a device and
// zeroes its trust. The affected account is soft-flagged for review.
func (h *AdminHandler) PostFraudReport(ctx *fiber.Ctx) error {
	var req fraudReportRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	device, err := h.deviceService.ReportFraud(ctx.Context(), req.UserID, req.DeviceID)
	if err != nil {
		return err
	}
	if err := h.lockoutService.Flag(ctx.Context(), req.UserID, "fraud_report", ctx.IP()); err != nil {
		slog.Error("could not flag account after fraud report", "userId", req.UserID, "error", err)
	}
	h.record(ctx, req.UserID, events.TypeFraudReport, events.SeverityHigh, map[string]any{
		"deviceId":   device.ID,
		"note":       req.Note,
		"reportedBy": currentUserID(ctx),
	})
	h.record(ctx, req.UserID, events.TypeDeviceTrustReset, events.SeverityMedium, map[string]any{
		"deviceId": device.ID,
	})
	return ctx.JSON(NewDataResponse(fiber.Map{
		"status":     "reported",
		"trustScore": device.TrustScore,
	}))
}

func (h *AdminHandler) record(ctx *fiber.Ctx, userID uint, eventType events.EventType, severity events.Severity, data map[string]any) {
	if _, err := h.eventService.Record(ctx.Context(), events.Event{
		UserID:    userID,
		Type:      eventType,
		Severity:  severity,
		Data:      data,
		IPAddress: ctx.IP(),
	}); err != nil {
		slog.Error("could not record admin event", "type", eventType, "userId", userID, "error", err)
	}
}

func NewAdminHandler(policy *auth.Policy, eventService EventService, lockoutService LockoutService, deviceService DeviceService) *AdminHandler {
	return &AdminHandler{
		policy:         policy,
		eventService:   eventService,
		lockoutService: lockoutService,
		deviceService:  deviceService,
	}
}
