package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luxquant/omnitron/storage"
)

func (a *API) sessionInfo(rec *storage.SessionRecord) SessionInfo {
	info := SessionInfo{
		ID:            rec.ID.String(),
		Protocol:      rec.Protocol,
		RemoteAddress: rec.RemoteAddress,
		Started:       rec.Started,
		Ended:         rec.Ended,
	}
	if rec.Username != nil {
		info.Username = *rec.Username
	}
	if rec.TargetSnapshot != nil {
		var target storage.TargetRecord
		if err := json.Unmarshal([]byte(*rec.TargetSnapshot), &target); err == nil {
			info.Target = target.Name
		}
	}
	_, info.Live = a.services.Sessions.Get(rec.ID)
	return info
}

// ListSessions returns every tracked session record, live connections
// first, newest first within each group.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := a.services.Repo.ListSessions(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	infos := make([]SessionInfo, 0, len(records))
	for i := range records {
		infos = append(infos, a.sessionInfo(&records[i]))
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Live != infos[j].Live {
			return infos[i].Live
		}
		return infos[i].Started.After(infos[j].Started)
	})

	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: infos})
}

func sessionIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "sessionID"))
}

// GetSession returns a single session record by id.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	records, err := a.services.Repo.ListSessions(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	for i := range records {
		if records[i].ID == id {
			writeJSON(w, http.StatusOK, a.sessionInfo(&records[i]))
			return
		}
	}
	writeError(w, http.StatusNotFound, "session not found")
}

// CloseSession asks a live session's protocol task to disconnect. Closing
// an already-ended session is a 409; an unknown id is a 404.
func (a *API) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, ok := a.services.Sessions.Get(id)
	if !ok {
		if a.sessionRecordExists(r, id) {
			writeError(w, http.StatusConflict, "session already ended")
			return
		}
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	a.log.Info("closing session on admin request", "session_id", id.String())
	sess.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) sessionRecordExists(r *http.Request, id uuid.UUID) bool {
	records, err := a.services.Repo.ListSessions(r.Context())
	if err != nil {
		a.log.Error("listing session records", "error", err)
		return false
	}
	for i := range records {
		if records[i].ID == id {
			return true
		}
	}
	return false
}
