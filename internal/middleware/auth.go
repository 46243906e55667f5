package middleware

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/osuops/tourney/internal/httputil"
	"github.com/osuops/tourney/internal/identity"
	"github.com/osuops/tourney/internal/store"
)

// Principal trusts the X-Principal-ID header set by the authenticating
// proxy upstream and attaches the caller's identity to the context,
// with staff roles loaded when the id belongs to a staff member.
// Authentication itself lives outside this service.
func Principal(st *store.BracketStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-Principal-ID")
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				httputil.BadRequest(w, "invalid X-Principal-ID")
				return
			}

			p := identity.Principal{ID: id}
			staff, err := st.GetStaff(r.Context(), id)
			if err == nil {
				p.Roles = staff.Roles
			} else if !errors.Is(err, sql.ErrNoRows) {
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequirePrincipal rejects anonymous requests.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.FromContext(r.Context()); !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
