package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/matchguard/matchguard/internal/sessions"
)

// TwoFactorHandler manages second-factor enrollment and maintenance for
// the logged-in user.
type TwoFactorHandler struct {
	userService      UserService
	twoFactorService TwoFactorService
}

type enrollSMSRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

type confirmEnrollRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
}

type passwordConfirmRequest struct {
	Password string `json:"password" validate:"required"`
}

type twoFactorStatusResponse struct {
	Enabled   bool   `json:"enabled"`
	Method    string `json:"method"`
	PhoneHint string `json:"phoneHint,omitempty"`
}

func (h *TwoFactorHandler) GetStatus(ctx *fiber.Ctx) error {
	sess := sessions.Get(ctx)
	cfg, err := h.twoFactorService.Status(ctx.Context(), sess.UserID)
	if err != nil {
		return err
	}
	resp := twoFactorStatusResponse{
		Enabled: cfg.Enabled(),
		Method:  cfg.Method,
	}
	if cfg.PhoneRef != "" {
		resp.PhoneHint = maskPhone(cfg.PhoneRef)
	}
	return ctx.JSON(NewDataResponse(resp))
}

func (h *TwoFactorHandler) PostEnrollTOTP(ctx *fiber.Ctx) error {
	sess := sessions.Get(ctx)
	user, err := h.userService.GetUser(ctx.Context(), sess.UserID)
	if err != nil {
		return err
	}
	enrollment, err := h.twoFactorService.BeginTOTPEnrollment(ctx.Context(), sess.UserID, user.Email)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(enrollment))
}

func (h *TwoFactorHandler) PostEnrollSMS(ctx *fiber.Ctx) error {
	var req enrollSMSRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	sess := sessions.Get(ctx)
	receipt, err := h.twoFactorService.BeginSMSEnrollment(ctx.Context(), sess.UserID, req.Phone)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"sent":        receipt.Success,
		"destination": receipt.MaskedDestination,
	}))
}

func (h *TwoFactorHandler) PostEnrollConfirm(ctx *fiber.Ctx) error {
	var req confirmEnrollRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	sess := sessions.Get(ctx)
	backupCodes, err := h.twoFactorService.ConfirmEnrollment(ctx.Context(), sess.UserID, req.Code, ctx.IP())
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"enabled":     true,
		"backupCodes": backupCodes,
	}))
}

// PostChallengeSMS re-sends the login challenge code.
func (h *TwoFactorHandler) PostChallengeSMS(ctx *fiber.Ctx) error {
	sess := sessions.Get(ctx)
	if !sess.Is2FARequired() {
		return fiber.NewError(fiber.StatusBadRequest, "No pending challenge")
	}
	receipt, err := h.twoFactorService.ChallengeSMS(ctx.Context(), sess.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"sent":        receipt.Success,
		"destination": receipt.MaskedDestination,
	}))
}

func (h *TwoFactorHandler) PostDisable(ctx *fiber.Ctx) error {
	var req passwordConfirmRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	sess := sessions.Get(ctx)
	if err := h.twoFactorService.Disable(ctx.Context(), sess.UserID, req.Password, ctx.IP()); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"enabled": false}))
}

func (h *TwoFactorHandler) PostBackupCodes(ctx *fiber.Ctx) error {
	var req passwordConfirmRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	sess := sessions.Get(ctx)
	codes, err := h.twoFactorService.RegenerateBackupCodes(ctx.Context(), sess.UserID, req.Password)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"backupCodes": codes}))
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}

func NewTwoFactorHandler(userService UserService, twoFactorService TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{
		userService:      userService,
		twoFactorService: twoFactorService,
	}
}
