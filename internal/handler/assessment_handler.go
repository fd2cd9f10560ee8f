package handler

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jobify-assessment-api/internal/assessment"
	"github.com/noah-isme/jobify-assessment-api/internal/dto"
	"github.com/noah-isme/jobify-assessment-api/internal/middleware"
	"github.com/noah-isme/jobify-assessment-api/internal/service"
	"github.com/noah-isme/jobify-assessment-api/internal/utils"
)

// AssessmentHandler exposes the candidate facing assessment endpoints.
type AssessmentHandler struct {
	attempts service.AttemptService
	proctor  service.ProctorService
	grading  service.GradingService
	logger   zerolog.Logger
}

// AssessmentLimits holds optional per-route rate limiters.
type AssessmentLimits struct {
	Run    fiber.Handler
	Events fiber.Handler
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler(attempts service.AttemptService, proctor service.ProctorService, grading service.GradingService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		attempts: attempts,
		proctor:  proctor,
		grading:  grading,
		logger:   logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register wires the endpoints under /applications/:applicationId/assessment.
func (h *AssessmentHandler) Register(router fiber.Router, limits AssessmentLimits) {
	router.Get("", h.get)
	router.Put("", h.saveAnswers)
	router.Post("/start", h.start)
	router.Post("/proctor-event", withLimit(limits.Events, h.recordEvent)...)
	router.Get("/proctor-events", h.listEvents)
	router.Post("/snapshot", withLimit(limits.Events, h.snapshot)...)
	router.Post("/run", withLimit(limits.Run, h.run)...)
	router.Post("/submit", h.submit)
	router.Post("/reset", h.reset)
}

func withLimit(limit fiber.Handler, handler fiber.Handler) []fiber.Handler {
	if limit == nil {
		return []fiber.Handler{handler}
	}
	return []fiber.Handler{limit, handler}
}

// CountedProctorEvent reports whether the request carries a proctor event that
// feeds a counter. Those events are always recorded and never throttled.
func CountedProctorEvent(c *fiber.Ctx) bool {
	if c.Method() != fiber.MethodPost {
		return false
	}
	var payload struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return false
	}
	return assessment.NormalizeEventType(payload.Type).Category() != assessment.CategoryNone
}

// identity resolves the caller and target application or writes the error response.
func (h *AssessmentHandler) identity(c *fiber.Ctx) (uint, uint, bool, error) {
	userID := middleware.UserID(c)
	if userID == 0 {
		return 0, 0, false, utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	applicationID, err := parseUintParam(c, "applicationId")
	if err != nil {
		return 0, 0, false, utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return userID, applicationID, true, nil
}

func (h *AssessmentHandler) get(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	view, err := h.attempts.Get(requestContext(c), userID, applicationID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "assessment retrieved", view)
}

func (h *AssessmentHandler) start(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	var payload dto.StartAssessmentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	resp, err := h.attempts.Start(requestContext(c), userID, applicationID, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "assessment started", resp)
}

func (h *AssessmentHandler) saveAnswers(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	var payload dto.SaveAnswersRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.attempts.SaveAnswers(requestContext(c), userID, applicationID, payload); err != nil {
		return h.handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AssessmentHandler) recordEvent(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	var payload dto.ProctorEventRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.proctor.RecordEvent(requestContext(c), userID, applicationID, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	if resp.Flagged {
		return utils.SendErrorWithData(c, fiber.StatusTooManyRequests, resp.Message, resp)
	}
	return utils.SendSuccess(c, "event recorded", resp)
}

func (h *AssessmentHandler) listEvents(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	events, err := h.proctor.ListEvents(requestContext(c), userID, applicationID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "proctor events retrieved", events)
}

func (h *AssessmentHandler) snapshot(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	var payload dto.SnapshotRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.attempts.UploadSnapshot(requestContext(c), userID, applicationID, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "snapshot stored", resp)
}

func (h *AssessmentHandler) run(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	var payload dto.RunCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.attempts.Run(requestContext(c), userID, applicationID, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "code executed", resp)
}

func (h *AssessmentHandler) submit(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	resp, err := h.grading.Submit(requestContext(c), userID, applicationID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "assessment submitted", resp)
}

func (h *AssessmentHandler) reset(c *fiber.Ctx) error {
	userID, applicationID, ok, err := h.identity(c)
	if !ok {
		return err
	}

	resp, err := h.attempts.Reset(requestContext(c), userID, applicationID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "assessment reset", resp)
}

func (h *AssessmentHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.Is(err, service.ErrNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrExpired):
		return utils.SendError(c, fiber.StatusGone, err.Error())
	case errors.Is(err, service.ErrValidation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUpstream):
		requestLogger(h.logger, c).Warn().Err(err).Msg("upstream dependency failed")
		return utils.SendError(c, fiber.StatusBadGateway, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Str("path", c.Path()).Msg("assessment operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
