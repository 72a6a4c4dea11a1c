package middleware

import (
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Authenticate resolves the bearer credential into an identity.
// Requests without a valid credential are rejected with 401.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := g.begin(r, audit.StageAuthenticate)

		identity, err := g.identities.Resolve(s.ctx, auth.BearerToken(r.Header.Get("Authorization")))
		if err == nil {
			s.d.SubjectID = identity.UserID
			s.d.EscalationID = identity.EscalationID
		}
		if !s.done(w, err) {
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = observability.WithCaller(ctx, identity.UserID, identity.EscalationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
