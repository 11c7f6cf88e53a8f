package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/luxquant/omnitron/auth"
)

// TargetKind enumerates the protocols a target speaks.
type TargetKind string

const (
	TargetSSH      TargetKind = "ssh"
	TargetHTTP     TargetKind = "http"
	TargetMySQL    TargetKind = "mysql"
	TargetPostgres TargetKind = "postgres"
	TargetWebAdmin TargetKind = "web_admin"
)

// CredentialRecord is the stored form of one user credential. Exactly the
// fields for its Kind are populated.
type CredentialRecord struct {
	Kind auth.CredentialKind `json:"kind"`

	// Kind == auth.KindPassword
	PasswordHash string `json:"password_hash,omitempty"`

	// Kind == auth.KindPublicKey; Key holds "<algorithm> <base64>".
	Key      string     `json:"key,omitempty"`
	LastUsed *time.Time `json:"last_used,omitempty"`

	// Kind == auth.KindTotp; base32-encoded shared secret.
	TotpSecret string `json:"totp_secret,omitempty"`

	// Kind == auth.KindAPIToken
	TokenSecret string     `json:"token_secret,omitempty"`
	TokenExpiry *time.Time `json:"token_expiry,omitempty"`
}

// PerProtocolRequirement is a user's declared extra-factor requirements,
// keyed by protocol. A nil slice means no explicit requirement for that
// protocol.
type PerProtocolRequirement struct {
	SSH      []auth.CredentialKind `json:"ssh,omitempty"`
	HTTP     []auth.CredentialKind `json:"http,omitempty"`
	MySQL    []auth.CredentialKind `json:"mysql,omitempty"`
	Postgres []auth.CredentialKind `json:"postgres,omitempty"`
}

// UserRecord is the stored form of a gateway user, its credentials and its
// role memberships.
type UserRecord struct {
	ID               uuid.UUID               `json:"id"`
	Username         string                  `json:"username"`
	Credentials      []CredentialRecord      `json:"credentials,omitempty"`
	CredentialPolicy *PerProtocolRequirement `json:"credential_policy,omitempty"`
	Roles            []string                `json:"roles,omitempty"`
}

// TargetRecord is the stored form of a protected backend target and the
// roles that authorize access to it.
type TargetRecord struct {
	ID      uuid.UUID         `json:"id"`
	Name    string            `json:"name"`
	Kind    TargetKind        `json:"kind"`
	Options map[string]string `json:"options,omitempty"`
	Roles   []string          `json:"roles,omitempty"`
}

// RoleRecord names a role; the role lists on users and targets are the sole
// authorization substrate.
type RoleRecord struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// TicketRecord is a temporary-access bearer token bound to a user/target
// pair. A nil UsesLeft means unlimited; zero means exhausted.
type TicketRecord struct {
	ID         uuid.UUID  `json:"id"`
	Secret     string     `json:"secret"`
	Username   string     `json:"username"`
	TargetName string     `json:"target_name"`
	UsesLeft   *uint32    `json:"uses_left,omitempty"`
	Expiry     *time.Time `json:"expiry,omitempty"`
	Created    time.Time  `json:"created"`
}

// SessionRecord is the persisted trail of one accepted connection.
type SessionRecord struct {
	ID             uuid.UUID  `json:"id"`
	Protocol       string     `json:"protocol"`
	RemoteAddress  string     `json:"remote_address"`
	Username       *string    `json:"username,omitempty"`
	TargetSnapshot *string    `json:"target_snapshot,omitempty"`
	TicketID       *uuid.UUID `json:"ticket_id,omitempty"`
	Started        time.Time  `json:"started"`
	Ended          *time.Time `json:"ended,omitempty"`
}
