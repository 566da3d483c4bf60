package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"wgprov/internal/logs"
	"wgprov/internal/models"
)

// Recoverer превращает панику обработчика в 500 problem+json. Стек и
// пользователь уходят в лог, клиенту отдаётся только reqid.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			reqid := GetRequestID(r)
			logs.Logger.WithFields(logrus.Fields{
				"reqid":  reqid,
				"method": r.Method,
				"uri":    r.RequestURI,
				"user":   r.Header.Get("X-User-Id"),
				"stack":  string(debug.Stack()),
			}).Errorf("panic: %v", rec)
			models.WriteProblem(w, http.StatusInternalServerError,
				"Internal Server Error",
				"unexpected server error, see logs by reqid", map[string]any{"reqid": reqid})
		}()
		next.ServeHTTP(w, r)
	})
}
