package api

import "time"

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionInfo describes one tracked session, live or ended.
type SessionInfo struct {
	ID            string     `json:"id"`
	Protocol      string     `json:"protocol"`
	RemoteAddress string     `json:"remote_address"`
	Username      string     `json:"username,omitempty"`
	Target        string     `json:"target,omitempty"`
	Started       time.Time  `json:"started"`
	Ended         *time.Time `json:"ended,omitempty"`
	Live          bool       `json:"live"`
}

// ListSessionsResponse is returned from GET /sessions.
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// CreateTicketRequest is the JSON body for POST /tickets.
type CreateTicketRequest struct {
	Username string     `json:"username"`
	Target   string     `json:"target"`
	Uses     *uint32    `json:"uses,omitempty"`
	Expiry   *time.Time `json:"expiry,omitempty"`
}

// CreateTicketResponse is returned from POST /tickets. The secret appears
// only here; subsequent listings omit it.
type CreateTicketResponse struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// RedeemTicketResponse is returned from POST /tickets/redeem. It reflects
// the temporary session the presented ticket was redeemed into.
type RedeemTicketResponse struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Target    string `json:"target"`
}

// TicketInfo describes one ticket without revealing its secret.
type TicketInfo struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Target   string     `json:"target"`
	UsesLeft *uint32    `json:"uses_left,omitempty"`
	Expiry   *time.Time `json:"expiry,omitempty"`
	Created  time.Time  `json:"created"`
}

// ListTicketsResponse is returned from GET /tickets.
type ListTicketsResponse struct {
	Tickets []TicketInfo `json:"tickets"`
}

// UserInfo describes one user account; credential material is omitted.
type UserInfo struct {
	Username        string   `json:"username"`
	CredentialKinds []string `json:"credential_kinds"`
	Roles           []string `json:"roles"`
}

// ListUsersResponse is returned from GET /users.
type ListUsersResponse struct {
	Users []UserInfo `json:"users"`
}

// TargetInfo describes one configured target.
type TargetInfo struct {
	Name  string   `json:"name"`
	Kind  string   `json:"kind"`
	Roles []string `json:"roles"`
}

// ListTargetsResponse is returned from GET /targets.
type ListTargetsResponse struct {
	Targets []TargetInfo `json:"targets"`
}
