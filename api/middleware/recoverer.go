package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/invoice-ledger/api/responses"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope and logs the request's
// idempotency key, if any. http.ErrAbortHandler is re-raised for net/http.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				err := fmt.Errorf("panic: %v", v)
				fields := map[string]any{
					"panic":  fmt.Sprint(v),
					"method": r.Method,
					"path":   r.URL.Path,
				}
				if key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)); key != "" {
					fields["idempotency_key"] = key
				}
				ctx := logg.WithFields(r.Context(), fields)
				logg.Error(ctx, "panic.recovered", err)

				if rec.status != 0 {
					// Headers are out; the client sees a truncated body.
					return
				}
				responses.WriteError(ctx, logg, rec, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "internal error"))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
