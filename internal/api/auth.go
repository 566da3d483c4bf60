package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"wgprov/internal/models"
	"wgprov/internal/provision"
)

type ctxKey string

const callerKey ctxKey = "caller"

// Заголовки личности выставляет вышестоящий сервис аутентификации.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserName  = "X-User-Name"
	HeaderUserAdmin = "X-User-Admin"
)

// sharedSecretAuth: Authorization: Bearer <sharedSecret>. Пустой секрет отключает проверку.
func sharedSecretAuth(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			const p = "Bearer "
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, p) ||
				subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, p)), []byte(secret)) != 1 {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identity кладёт в контекст Caller из заголовков; без X-User-Id — 401.
func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "caller identity is missing", nil)
			return
		}
		admin, _ := strconv.ParseBool(r.Header.Get(HeaderUserAdmin))
		c := provision.Caller{
			OwnerID: id,
			Name:    strings.TrimSpace(r.Header.Get(HeaderUserName)),
			Admin:   admin,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, c)))
	})
}

func callerFrom(r *http.Request) provision.Caller {
	c, _ := r.Context().Value(callerKey).(provision.Caller)
	return c
}

func adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !callerFrom(r).Admin {
			models.WriteProblem(w, http.StatusForbidden, "Forbidden", "admin role required", nil)
			return
		}
		next(w, r)
	}
}
