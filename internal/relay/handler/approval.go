package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/approval-relay/internal/audit"
	"github.com/xela07ax/approval-relay/internal/domain"
	"go.uber.org/zap"
)

// ApprovalService Описываем, что нам нужно от сервиса
type ApprovalService interface {
	Submit(ctx context.Context, sub domain.Submission) (*domain.ApprovalRequest, error)
	Forward(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	Decide(ctx context.Context, id, token, actor string, source domain.DecisionSource) (*domain.ApprovalRequest, error)
	GetStatus(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	List(ctx context.Context, status string, limit int) ([]*domain.ApprovalRequest, error)
	History(ctx context.Context, id string) ([]audit.LifecycleEvent, error)
}

type ApprovalHandler struct {
	service ApprovalService
	logger  *zap.Logger
}

func NewApprovalHandler(s ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{service: s, logger: logger.Named("approval-handler")}
}

// Routes монтируется в /api
func (h *ApprovalHandler) Routes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.Submit)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetStatus)
			r.Get("/history", h.History)
			r.Post("/forward", h.Forward) // Повторная пересылка
			r.Post("/{status}", h.Decide) // approve | decline
		})
	})
	r.Post("/callback", h.Callback) // Решение из внешнего workflow
}

type SubmitRequest struct {
	RequestorName string     `json:"requestorName"`
	SystemName    string     `json:"systemName"`
	RequestType   string     `json:"requestType"`
	Reason        string     `json:"reason"`
	RequestedAt   *time.Time `json:"requestedAt,omitempty"`
	SourceSystem  string     `json:"sourceSystem,omitempty"`
}

func (h *ApprovalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, badBody(err))
		return
	}

	rec, err := h.service.Submit(r.Context(), domain.Submission{
		RequestorName: req.RequestorName,
		SystemName:    req.SystemName,
		RequestType:   req.RequestType,
		Reason:        req.Reason,
		RequestedAt:   req.RequestedAt,
		SourceSystem:  req.SourceSystem,
	})
	if err != nil {
		// strict: запись создана, но пересылка не удалась
		if rec != nil && errors.Is(err, domain.ErrForwarding) {
			writeForwardFailure(w, rec, err)
			return
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec.Summary())
}

func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status") // Достаем из ?status=...

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, h.logger, &domain.ValidationError{Fields: []string{"limit"}})
			return
		}
		limit = n
	}

	list, err := h.service.List(r.Context(), status, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ApprovalHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ApprovalHandler) Forward(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.service.Forward(r.Context(), id)
	if err != nil {
		if rec != nil && errors.Is(err, domain.ErrForwarding) {
			writeForwardFailure(w, rec, err)
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type DecideRequest struct {
	ActorName string `json:"actorName"`
}

// Decide - прямое решение: POST /api/requests/{id}/approve. Тело необязательно.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token := chi.URLParam(r, "status")

	var req DecideRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, h.logger, badBody(err))
			return
		}
	}

	rec, err := h.service.Decide(r.Context(), id, token, req.ActorName, domain.SourceAPI)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type CallbackRequest struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ActorName string `json:"actorName"`
}

// Callback - решение, пришедшее из внешнего workflow.
func (h *ApprovalHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, badBody(err))
		return
	}
	if req.ID == "" {
		writeError(w, h.logger, &domain.ValidationError{Fields: []string{"id"}})
		return
	}

	rec, err := h.service.Decide(r.Context(), req.ID, req.Status, req.ActorName, domain.SourceCallback)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func badBody(err error) error {
	return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
}
