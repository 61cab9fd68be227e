package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type actorContextKey struct{}

func contextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// requestActor is the identity recorded in custody entries appended
// for this request. Defaults to the server's configured actor.
func (s *Server) requestActor(r *http.Request) string {
	if actor, ok := r.Context().Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return s.actor
}

// withAuth enforces the static bearer token when one is configured.
// Authentication proper is out of scope; the token gates the surface
// and the configured actor names the caller in custody entries.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || s.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			s.writeErrorReq(w, r, http.StatusUnauthorized, apiError{
				status:  http.StatusUnauthorized,
				code:    "unauthorized",
				errCode: ErrCodeUnauthorized,
				err:     fmt.Errorf("missing bearer token"),
			})
			return
		}
		if token != s.apiToken {
			s.writeErrorReq(w, r, http.StatusUnauthorized, apiError{
				status:  http.StatusUnauthorized,
				code:    "unauthorized",
				errCode: ErrCodeUnauthorized,
				err:     fmt.Errorf("invalid bearer token"),
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithActor(r.Context(), s.actor)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
