package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dealdesk/be-deal-approvals/internal/apperrors"
	"github.com/dealdesk/be-deal-approvals/internal/logger"
	"github.com/dealdesk/be-deal-approvals/internal/middleware"
	"github.com/dealdesk/be-deal-approvals/internal/repository"
	"github.com/dealdesk/be-deal-approvals/internal/service"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

// Actor identity headers. The service sits behind the API gateway, which
// authenticates the user and forwards identity in these headers.
const (
	headerActorID         = "X-Actor-Id"
	headerActorRole       = "X-Actor-Role"
	headerActorDepartment = "X-Actor-Department"
)

// HTTPHandler exposes the deal approval workflow over HTTP.
type HTTPHandler struct {
	deals     *service.DealService
	approvals *service.ApprovalService
	queue     *service.QueueService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(deals *service.DealService, approvals *service.ApprovalService, queue *service.QueueService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		deals:     deals,
		approvals: approvals,
		queue:     queue,
		log:       log,
	}
}

// Routes mounts all API routes on a chi router.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/deals", func(r chi.Router) {
			r.Post("/", h.CreateDeal)
			r.Get("/", h.ListDeals)
			r.Route("/{dealID}", func(r chi.Router) {
				r.Get("/", h.GetDeal)
				r.Patch("/", h.UpdateDraft)
				r.Post("/transition", h.Transition)
				r.Get("/approval-state", h.GetApprovalState)
				r.Get("/history", h.GetHistory)
				r.Get("/approvals", h.GetDealApprovals)
			})
		})

		r.Post("/approvals/{approvalID}/decision", h.RecordDecision)
		r.Get("/queue", h.GetQueue)
		r.Get("/stats/deals", h.GetDealStats)
	})

	return r
}

// Health reports service liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Deals

type createDealRequest struct {
	Name         string                 `json:"name"`
	DraftType    *workflow.DraftType    `json:"draft_type,omitempty"`
	AdvertiserID *string                `json:"advertiser_id,omitempty"`
	DealValue    int64                  `json:"deal_value"`
	Priority     workflow.Priority      `json:"priority,omitempty"`
	Incentives   []repository.Incentive `json:"incentives,omitempty"`
	Notes        *string                `json:"notes,omitempty"`
}

func (h *HTTPHandler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	deal, err := h.deals.CreateDeal(r.Context(), actor, actorID, &service.CreateDealRequest{
		Name:         req.Name,
		DraftType:    req.DraftType,
		AdvertiserID: req.AdvertiserID,
		DealValue:    req.DealValue,
		Priority:     req.Priority,
		Incentives:   req.Incentives,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

func (h *HTTPHandler) GetDeal(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	deal, err := h.deals.GetDeal(r.Context(), chi.URLParam(r, "dealID"), actor, actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (h *HTTPHandler) ListDeals(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filter := repository.DealFilter{Limit: 50}
	if s := r.URL.Query().Get("status"); s != "" {
		status := workflow.Status(s)
		if !workflow.ValidStatus(status) {
			h.writeError(w, r, apperrors.InvalidInput("status", "unknown status"))
			return
		}
		filter.Status = &status
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	deals, total, err := h.deals.ListDeals(r.Context(), actor, actorID, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deals": deals,
		"total": total,
	})
}

type updateDraftRequest struct {
	Name       *string                `json:"name,omitempty"`
	DraftType  *workflow.DraftType    `json:"draft_type,omitempty"`
	DealValue  *int64                 `json:"deal_value,omitempty"`
	Priority   *workflow.Priority     `json:"priority,omitempty"`
	Incentives []repository.Incentive `json:"incentives,omitempty"`
	Notes      *string                `json:"notes,omitempty"`
}

func (h *HTTPHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req updateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	deal, err := h.deals.UpdateDraft(r.Context(), chi.URLParam(r, "dealID"), actor, actorID, &service.UpdateDraftRequest{
		Name:       req.Name,
		DraftType:  req.DraftType,
		DealValue:  req.DealValue,
		Priority:   req.Priority,
		Incentives: req.Incentives,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

type transitionRequest struct {
	TargetStatus workflow.Status `json:"target_status"`
	Notes        *string         `json:"notes,omitempty"`
}

func (h *HTTPHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	deal, err := h.deals.AttemptTransition(r.Context(), chi.URLParam(r, "dealID"), actor, actorID, req.TargetStatus, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	history, err := h.deals.GetHistory(r.Context(), chi.URLParam(r, "dealID"), actor, actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// Approvals

type decisionRequest struct {
	Decision workflow.DecisionStatus `json:"decision"`
	Notes    *string                 `json:"notes,omitempty"`
}

func (h *HTTPHandler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	approval, err := h.approvals.RecordDecision(r.Context(), chi.URLParam(r, "approvalID"), actor, actorID, req.Decision, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

func (h *HTTPHandler) GetApprovalState(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	state, err := h.approvals.GetApprovalState(r.Context(), chi.URLParam(r, "dealID"), actor, actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *HTTPHandler) GetDealApprovals(w http.ResponseWriter, r *http.Request) {
	actor, actorID, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	approvals, err := h.approvals.GetDealApprovals(r.Context(), chi.URLParam(r, "dealID"), actor, actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": approvals})
}

// Queue

func (h *HTTPHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	queue, err := h.queue.GetQueue(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *HTTPHandler) GetDealStats(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	counts, err := h.deals.GetStatusCounts(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"counts": counts})
}

// helpers

// actorFrom reads the forwarded identity headers. Both id and role are
// required on every call.
func actorFrom(r *http.Request) (workflow.Actor, string, error) {
	actorID := r.Header.Get(headerActorID)
	role := r.Header.Get(headerActorRole)
	if actorID == "" || role == "" {
		return workflow.Actor{}, "", apperrors.Forbidden("missing actor identity headers")
	}
	actor := workflow.Actor{
		Role:       workflow.Role(role),
		Department: r.Header.Get(headerActorDepartment),
	}
	if _, err := workflow.CapabilitiesFor(actor); err != nil {
		return workflow.Actor{}, "", err
	}
	return actor, actorID, nil
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := apperrors.HTTPStatus(err)

	var resp errorResponse
	resp.Error.Code = string(code)
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		resp.Error.Message = appErr.Message
	} else {
		resp.Error.Message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("Request failed")
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
