package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vigil/internal/registration/service"
	dErrors "vigil/pkg/domain-errors"
)

// RegistrationService is the slice of the registration service the transport
// depends on.
type RegistrationService interface {
	RegisterPatient(ctx context.Context, req service.RegisterRequest) (string, error)
	Onboard(ctx context.Context, tokenID string) (credential string, message string, err error)
}

// Handler is the thin HTTP layer. It parses wire formats and delegates to the
// registration service without embedding business logic.
type Handler struct {
	registration RegistrationService
}

func NewHandler(registration RegistrationService) *Handler {
	return &Handler{registration: registration}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// registerRequest mirrors the upstream registration payload. Timing fields
// arrive as strings and are parsed here; the core only sees typed values.
type registerRequest struct {
	PatientID       string `json:"patient_id"`
	WatchID         string `json:"watch_id"`
	PhoneID         string `json:"phone_id"`
	ContextID       string `json:"context_id"`
	PatientMail     string `json:"patient_mail"`
	EventStartDate  string `json:"event_start_date"`
	EventDuration   string `json:"event_duration"`
	AppointmentDate string `json:"appointment_date"`
}

type registerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	svcReq, err := parseRegisterRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.registration.RegisterPatient(r.Context(), svcReq); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Status:  "OK",
		Message: "Registered successfully",
	})
}

type onboardResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Credential string `json:"credential"`
}

func (h *Handler) handleOnboard(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")
	if tokenID == "" {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "token identifier is required"))
		return
	}

	cred, msg, err := h.registration.Onboard(r.Context(), tokenID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, onboardResponse{
		Status:     "OK",
		Message:    msg,
		Credential: cred,
	})
}

func parseRegisterRequest(req registerRequest) (service.RegisterRequest, error) {
	var zero service.RegisterRequest

	if req.PatientID == "" {
		return zero, dErrors.New(dErrors.CodeInvalidInput, "patient_id is required")
	}
	if _, err := mail.ParseAddress(req.PatientMail); err != nil {
		return zero, dErrors.New(dErrors.CodeInvalidInput, "patient_mail is not a valid address")
	}

	eventStart, err := time.Parse(time.RFC3339, req.EventStartDate)
	if err != nil {
		return zero, dErrors.New(dErrors.CodeInvalidTiming, "event_start_date is not a valid RFC 3339 timestamp")
	}
	appointment, err := time.Parse(time.RFC3339, req.AppointmentDate)
	if err != nil {
		return zero, dErrors.New(dErrors.CodeInvalidTiming, "appointment_date is not a valid RFC 3339 timestamp")
	}
	duration, err := strconv.ParseInt(req.EventDuration, 10, 64)
	if err != nil {
		return zero, dErrors.New(dErrors.CodeInvalidTiming, "event_duration is not a valid integer")
	}
	if duration < 0 {
		return zero, dErrors.New(dErrors.CodeInvalidTiming, "event_duration must not be negative")
	}

	return service.RegisterRequest{
		PatientID:            req.PatientID,
		PatientMail:          req.PatientMail,
		WatchID:              req.WatchID,
		PhoneID:              req.PhoneID,
		ContextID:            req.ContextID,
		EventStart:           eventStart,
		EventDurationSeconds: duration,
		AppointmentAt:        appointment,
	}, nil
}
