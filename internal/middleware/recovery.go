package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"revenue-backend/pkg/utils"
)

// PanicRecovery converts a handler panic into a 500 instead of tearing down
// the connection. A panic mid-save cannot corrupt ledger state: the shard
// mutations are single atomic calls and the submission row only advances
// after they succeed.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[Recovery] panic on %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				utils.Error(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
