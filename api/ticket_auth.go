package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/luxquant/omnitron/auth"
	"github.com/luxquant/omnitron/session"
)

// ticketScheme is the Authorization scheme carrying a one-shot access
// ticket secret, as in "Authorization: Omnitron <secret>".
const ticketScheme = "Omnitron"

type contextKey int

const sessionKey contextKey = iota

// SessionFromContext returns the temporary session bound by TicketAuth for
// the current request.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok
}

// TicketAuth authenticates a request with the ticket header form. The
// secret is redeemed into a temporary session bound to the ticket's user
// and target; the session lives only for the duration of the request and
// is released once the response is written, so the authorization is never
// persisted. Wrong secrets and exhausted or expired tickets all collapse
// into one uniform 401.
func (a *API) TicketAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, secret, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, ticketScheme) || secret == "" {
			writeError(w, http.StatusUnauthorized, "expected an Omnitron ticket")
			return
		}

		sess, err := a.services.Sessions.Register(r.Context(),
			auth.ProtocolHTTP, r.RemoteAddr, session.NewChannelHandle())
		if err != nil {
			mapError(w, err)
			return
		}
		defer a.services.Sessions.Release(sess)

		granted, err := a.services.AuthorizeSessionWithTicket(r.Context(), sess, secret)
		if err != nil {
			mapError(w, err)
			return
		}
		if !granted {
			writeError(w, http.StatusUnauthorized, "invalid ticket")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RedeemTicket reports what the presented ticket grants. It exists so a
// ticket holder (or an operator handed one) can verify it end to end: the
// call consumes one use exactly like a real connection would.
func (a *API) RedeemTicket(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "no session bound to request")
		return
	}
	resp := RedeemTicketResponse{
		SessionID: sess.ID().String(),
		Username:  sess.Username(),
	}
	if target := sess.Target(); target != nil {
		resp.Target = target.Name
	}
	writeJSON(w, http.StatusOK, resp)
}
