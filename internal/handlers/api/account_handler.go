package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/matchguard/matchguard/internal/accounts"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/model"
)

// AccountHandler covers the self-service surface: profile, devices,
// security questions, password changes, data export and account
// deletion.
type AccountHandler struct {
	userService   UserService
	deviceService DeviceService
	eventService  EventService
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type deviceTrustRequest struct {
	Trusted bool `json:"trusted"`
}

type securityQuestionsRequest struct {
	Questions []accounts.QuestionAnswer `json:"questions" validate:"required,min=3,dive"`
}

type deviceResponse struct {
	DeviceID   uint      `json:"deviceId"`
	Platform   string    `json:"platform"`
	TrustScore int       `json:"trustScore"`
	Trusted    bool      `json:"trusted"`
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
}

func newDeviceResponse(device *model.Device) deviceResponse {
	return deviceResponse{
		DeviceID:   device.ID,
		Platform:   device.Platform,
		TrustScore: device.TrustScore,
		Trusted:    device.Trusted,
		FirstSeen:  device.FirstSeenAt,
		LastSeen:   device.LastSeenAt,
	}
}

func (h *AccountHandler) GetProfile(ctx *fiber.Ctx) error {
	user, err := h.userService.GetUser(ctx.Context(), currentUserID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newUserInfo(user)))
}

func (h *AccountHandler) PostChangePassword(ctx *fiber.Ctx) error {
	var req changePasswordRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	userID := currentUserID(ctx)
	if err := h.userService.ChangePassword(ctx.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	h.record(ctx, userID, events.TypePasswordChanged, events.SeverityMedium, nil)
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "ok"}))
}

func (h *AccountHandler) GetDevices(ctx *fiber.Ctx) error {
	rows, err := h.deviceService.ListDevices(ctx.Context(), currentUserID(ctx))
	if err != nil {
		return err
	}
	out := make([]deviceResponse, len(rows))
	for i, device := range rows {
		out[i] = newDeviceResponse(device)
	}
	return ctx.JSON(NewDataResponse(out))
}

func (h *AccountHandler) PostDeviceTrust(ctx *fiber.Ctx) error {
	deviceID, err := ctx.ParamsInt("id")
	if err != nil || deviceID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid device id")
	}
	var req deviceTrustRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	device, err := h.deviceService.SetTrusted(ctx.Context(), currentUserID(ctx), uint(deviceID), req.Trusted)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newDeviceResponse(device)))
}

func (h *AccountHandler) GetSecurityQuestions(ctx *fiber.Ctx) error {
	questions, err := h.userService.ListSecurityQuestions(ctx.Context(), currentUserID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"questions": questions}))
}

func (h *AccountHandler) PostSecurityQuestions(ctx *fiber.Ctx) error {
	var req securityQuestionsRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := h.userService.SetSecurityQuestions(ctx.Context(), currentUserID(ctx), req.Questions); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "ok"}))
}

func (h *AccountHandler) PostRequestDeletion(ctx *fiber.Ctx) error {
	var req passwordConfirmRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	userID := currentUserID(ctx)
	purgeAt, err := h.userService.RequestDeletion(ctx.Context(), userID, req.Password)
	if err != nil {
		return err
	}
	h.record(ctx, userID, events.TypeDeleteRequested, events.SeverityMedium, map[string]any{
		"purgeAt": purgeAt,
	})
	return ctx.JSON(NewDataResponse(fiber.Map{"purgeAt": purgeAt}))
}

func (h *AccountHandler) PostCancelDeletion(ctx *fiber.Ctx) error {
	if err := h.userService.CancelDeletion(ctx.Context(), currentUserID(ctx)); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "ok"}))
}

// PostRequestExport issues a short-lived signed token for downloading the
// account's data bundle.
func (h *AccountHandler) PostRequestExport(ctx *fiber.Ctx) error {
	userID := currentUserID(ctx)
	token, expiresAt, err := h.userService.IssueExportToken(userID)
	if err != nil {
		return err
	}
	h.record(ctx, userID, events.TypeDataExportRequested, events.SeverityLow, nil)
	return ctx.JSON(NewDataResponse(fiber.Map{
		"token":     token,
		"expiresAt": expiresAt,
	}))
}

// GetExport serves the data bundle for a valid export token.
func (h *AccountHandler) GetExport(ctx *fiber.Ctx) error {
	userID, err := h.userService.VerifyExportToken(ctx.Query("token"))
	if err != nil {
		return err
	}
	user, err := h.userService.GetUser(ctx.Context(), userID)
	if err != nil {
		return err
	}
	rows, err := h.deviceService.ListDevices(ctx.Context(), userID)
	if err != nil {
		return err
	}
	devicesOut := make([]deviceResponse, len(rows))
	for i, device := range rows {
		devicesOut[i] = newDeviceResponse(device)
	}
	eventsOut, _, err := h.eventService.Query(ctx.Context(), events.Filter{UserID: userID}, events.Page{Limit: 1000})
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"user":    newUserInfo(user),
		"devices": devicesOut,
		"events":  eventsOut,
	}))
}

func (h *AccountHandler) record(ctx *fiber.Ctx, userID uint, eventType events.EventType, severity events.Severity, data map[string]any) {
	if _, err := h.eventService.Record(ctx.Context(), events.Event{
		UserID:    userID,
		Type:      eventType,
		Severity:  severity,
		Data:      data,
		IPAddress: ctx.IP(),
	}); err != nil {
		slog.Error("could not record account event", "type", eventType, "userId", userID, "error", err)
	}
}

func NewAccountHandler(userService UserService, deviceService DeviceService, eventService EventService) *AccountHandler {
	return &AccountHandler{
		userService:   userService,
		deviceService: deviceService,
		eventService:  eventService,
	}
}
