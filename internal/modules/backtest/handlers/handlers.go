// Package handlers provides HTTP handlers for backtest operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/events"
	"github.com/aristath/etf-backtester/internal/modules/backtest"
)

// Service is the backtest manager as seen by the HTTP layer
type Service interface {
	Create(ctx context.Context, req backtest.CreateRequest) (backtest.StatusReport, error)
	Step(ctx context.Context, id string, days int) (backtest.StepResult, error)
	Status(ctx context.Context, id string) (backtest.StatusReport, error)
	Artifacts(ctx context.Context, id string) (backtest.Artifacts, error)
	List(ctx context.Context) ([]backtest.Record, error)
	Delete(ctx context.Context, id string) error
	MaxStepDays() int
}

// Handler handles backtest HTTP requests
type Handler struct {
	service Service
	bus     *events.Bus
	log     zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(service Service, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		bus:     bus,
		log:     log.With().Str("handler", "backtest").Logger(),
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string                   `json:"code"`
	Message string                   `json:"message"`
	Details []domain.ValidationError `json:"details,omitempty"`
}

type createResponse struct {
	ID     string          `json:"id"`
	Status backtest.Status `json:"status"`
}

type stepRequest struct {
	Days *int `json:"days"`
}

type listResponse struct {
	Backtests []backtest.Record `json:"backtests"`
	Count     int               `json:"count"`
}

// HandleCreate handles POST /backtests
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req backtest.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ValidationErrors{{Field: "body", Message: "invalid JSON: " + err.Error()}})
		return
	}

	report, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createResponse{ID: report.ID, Status: report.Status})
}

// HandleStep handles POST /backtests/{id}/step
func (h *Handler) HandleStep(w http.ResponseWriter, r *http.Request, id string) {
	days := 1
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, domain.ValidationErrors{{Field: "body", Message: "invalid JSON: " + err.Error()}})
		return
	}
	if req.Days != nil {
		days = *req.Days
	}
	if days < 1 || days > h.service.MaxStepDays() {
		h.writeError(w, domain.ValidationErrors{{
			Field:   "days",
			Message: fmt.Sprintf("must be between 1 and %d", h.service.MaxStepDays()),
		}})
		return
	}

	result, err := h.service.Step(r.Context(), id, days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.Trades == nil {
		result.Trades = []domain.Trade{}
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleStatus handles GET /backtests/{id}/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request, id string) {
	report, err := h.service.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleArtifacts handles GET /backtests/{id}/artifacts
func (h *Handler) HandleArtifacts(w http.ResponseWriter, r *http.Request, id string) {
	artifacts, err := h.service.Artifacts(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, artifacts)
}

// HandleArtifactFile handles GET /backtests/{id}/artifacts/{file}
func (h *Handler) HandleArtifactFile(w http.ResponseWriter, r *http.Request, id, file string) {
	artifacts, err := h.service.Artifacts(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, contentType, err := backtest.ArtifactFile(artifacts, file)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if contentType == backtest.ContentTypeCSV {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"-"+file))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Error().Err(err).Str("file", file).Msg("Failed to write artifact")
	}
}

// HandleList handles GET /backtests
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Backtests: records, Count: len(records)})
}

// HandleDelete handles DELETE /backtests/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps an error code to its HTTP status
func statusFor(code string) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeCapacityExceeded:
		return http.StatusTooManyRequests
	case domain.CodeDataLoad:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Code: domain.ErrorCode(err), Message: err.Error()}
	if errors.Is(err, backtest.ErrUnknownArtifact) {
		resp.Code = domain.CodeNotFound
	}

	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Details = verrs
	}

	status := statusFor(resp.Code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("code", resp.Code).Msg("Request failed")
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
