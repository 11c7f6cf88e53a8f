package api

import "net/http"

// ListUsers returns the configured user accounts. Credential material
// never leaves the store; only the kinds on file are reported.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.services.Provider.ListUsers(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		kinds := make([]string, 0, len(u.Credentials))
		for _, c := range u.Credentials {
			kinds = append(kinds, string(c.Kind))
		}
		infos = append(infos, UserInfo{
			Username:        u.Username,
			CredentialKinds: kinds,
			Roles:           u.Roles,
		})
	}
	writeJSON(w, http.StatusOK, ListUsersResponse{Users: infos})
}

// ListTargets returns the configured targets.
func (a *API) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := a.services.Provider.ListTargets(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	infos := make([]TargetInfo, 0, len(targets))
	for _, t := range targets {
		infos = append(infos, TargetInfo{
			Name:  t.Name,
			Kind:  string(t.Kind),
			Roles: t.Roles,
		})
	}
	writeJSON(w, http.StatusOK, ListTargetsResponse{Targets: infos})
}
