// Package auth implements the credential model, credential policies and the
// multi-step authentication state machine of the gateway core.
//
// Everything in this package is storage-agnostic: policies are pure
// predicates over sets of credential kinds, and the state store resolves
// policies through the narrow PolicySource interface so that it never
// depends on how users are persisted.
package auth

import "errors"

var (
	// ErrUserNotFound indicates the username is unknown to the configuration
	// backend. Protocol layers must render this as a generic auth failure and
	// never reveal whether the user exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentialType indicates a credential was presented that the
	// active protocol or policy never supports.
	ErrInvalidCredentialType = errors.New("invalid credential type")
)

// Protocol names used for session tracking and per-protocol policy dispatch.
const (
	ProtocolSSH      = "SSH"
	ProtocolHTTP     = "HTTP"
	ProtocolMySQL    = "MySQL"
	ProtocolPostgres = "PostgreSQL"
	ProtocolWebAdmin = "WebAdmin"
)

// CredentialKind is a category of proof of identity.
type CredentialKind string

const (
	KindPassword  CredentialKind = "password"
	KindPublicKey CredentialKind = "public_key"
	KindTotp      CredentialKind = "totp"
	KindAPIToken  CredentialKind = "api_token"
)

// Credential is one piece of client-presented proof of identity. The payload
// is opaque to this package; interpretation (hash comparison, TOTP check,
// key comparison) is delegated to the configuration provider.
type Credential interface {
	Kind() CredentialKind
}

// PasswordCredential carries a cleartext password presented by a client.
type PasswordCredential struct {
	Password string
}

func (PasswordCredential) Kind() CredentialKind { return KindPassword }

// PublicKeyCredential carries a public key presented during an SSH handshake.
type PublicKeyCredential struct {
	Algorithm string
	KeyBytes  []byte
}

func (PublicKeyCredential) Kind() CredentialKind { return KindPublicKey }

// OtpCredential carries a time-based one-time code.
type OtpCredential struct {
	Code string
}

func (OtpCredential) Kind() CredentialKind { return KindTotp }

// APITokenCredential carries a bearer API token.
type APITokenCredential struct {
	Token string
}

func (APITokenCredential) Kind() CredentialKind { return KindAPIToken }

// KindSet is an unordered set of credential kinds.
type KindSet map[CredentialKind]struct{}

// NewKindSet builds a set from the given kinds.
func NewKindSet(kinds ...CredentialKind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts a kind into the set.
func (s KindSet) Add(kind CredentialKind) {
	s[kind] = struct{}{}
}

// Contains reports whether kind is in the set.
func (s KindSet) Contains(kind CredentialKind) bool {
	_, ok := s[kind]
	return ok
}

// ContainsAll reports whether every kind in other is in the set.
func (s KindSet) ContainsAll(other []CredentialKind) bool {
	for _, k := range other {
		if !s.Contains(k) {
			return false
		}
	}
	return true
}

// Intersects reports whether the set shares at least one kind with other.
func (s KindSet) Intersects(other []CredentialKind) bool {
	for _, k := range other {
		if s.Contains(k) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the set.
func (s KindSet) Clone() KindSet {
	c := make(KindSet, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}
