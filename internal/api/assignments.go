package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldops/funnel/internal/assignment"
	"github.com/fieldops/funnel/internal/funnel"
	"github.com/fieldops/funnel/internal/store"
)

type AssignmentsHandler struct {
	store   store.Store
	service *assignment.Service
}

func NewAssignmentsHandler(s store.Store, svc *assignment.Service) *AssignmentsHandler {
	return &AssignmentsHandler{store: s, service: svc}
}

// Candidates previews the funnel for an order without creating anything.
func (h *AssignmentsHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	outcome, err := h.service.Candidates(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type DirectAssignmentRequest struct {
	ProviderID string `json:"provider_id"`
}

func (h *AssignmentsHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	var req DirectAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid provider_id"})
		return
	}

	a, err := h.service.CreateDirect(r.Context(), orderID, providerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AssignmentsHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	a, err := h.service.CreateOffer(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AssignmentsHandler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	created, err := h.service.CreateBroadcast(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *AssignmentsHandler) ListForOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	assignments, err := h.store.ListAssignmentsForOrder(r.Context(), orderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if assignments == nil {
		assignments = []*store.Assignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *AssignmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignment id"})
		return
	}

	a, err := h.store.GetAssignment(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "assignment not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AssignmentsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignment id"})
		return
	}

	a, err := h.service.Accept(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type RefuseResponse struct {
	Status    string            `json:"status"`
	NextOffer *store.Assignment `json:"next_offer,omitempty"`
}

func (h *AssignmentsHandler) Refuse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignment id"})
		return
	}

	next, err := h.service.Refuse(r.Context(), id)
	if err != nil {
		var none *assignment.NoEligibleProvidersError
		if errors.As(err, &none) {
			// The refusal itself stuck; there is just nobody left to offer to.
			writeJSON(w, http.StatusOK, RefuseResponse{Status: "refused"})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RefuseResponse{Status: "refused", NextOffer: next})
}

// Transparency returns the frozen funnel snapshot behind an assignment.
func (h *AssignmentsHandler) Transparency(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignment id"})
		return
	}

	outcome, err := h.service.Transparency(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var none *assignment.NoEligibleProvidersError
	if errors.As(err, &none) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": none.Error(),
			"code":  funnel.TerminalNoEligibleProviders,
			"log":   none.Log,
		})
		return
	}
	var ineligible *assignment.IneligibleProviderError
	if errors.As(err, &ineligible) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  ineligible.Error(),
			"stage":  ineligible.Stage,
			"reason": ineligible.Reason,
		})
		return
	}
	var conflict *assignment.ConcurrentAssignmentConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": conflict.Error()})
		return
	}
	var invalid *assignment.InvalidTransitionError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": invalid.Error()})
		return
	}
	var badWeights *funnel.ConfigurationError
	if errors.As(err, &badWeights) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": badWeights.Error()})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
