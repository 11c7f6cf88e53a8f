package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luxquant/omnitron/storage"
)

// ListTickets returns every ticket without its secret.
func (a *API) ListTickets(w http.ResponseWriter, r *http.Request) {
	records, err := a.services.Tickets.List(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	infos := make([]TicketInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, TicketInfo{
			ID:       rec.ID.String(),
			Username: rec.Username,
			Target:   rec.TargetName,
			UsesLeft: rec.UsesLeft,
			Expiry:   rec.Expiry,
			Created:  rec.Created,
		})
	}
	writeJSON(w, http.StatusOK, ListTicketsResponse{Tickets: infos})
}

// CreateTicket mints a new access ticket. The response is the only place
// the secret is ever revealed.
func (a *API) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "username and target are required")
		return
	}

	ctx := r.Context()
	if _, err := a.services.Repo.GetUser(ctx, req.Username); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown user")
			return
		}
		mapError(w, err)
		return
	}
	if _, err := a.services.Repo.GetTarget(ctx, req.Target); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown target")
			return
		}
		mapError(w, err)
		return
	}

	ticket, err := a.services.Tickets.Create(ctx, req.Username, req.Target, req.Uses, req.Expiry)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateTicketResponse{
		ID:     ticket.ID.String(),
		Secret: ticket.Secret,
	})
}

// DeleteTicket revokes a ticket immediately.
func (a *API) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "ticketID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}
	if err := a.services.Tickets.Delete(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
