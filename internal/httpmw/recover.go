package httpmw

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/tfmkt/transfermarkt-api/internal/log"
	"github.com/tfmkt/transfermarkt-api/internal/xerrors"
)

// Recover turns a handler panic into a 500 with the standard error body and
// logs it with the stack of the panicking goroutine. onPanic may be nil.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				var err error
				switch x := v.(type) {
				case error:
					err = xerrors.Wrap(x, "panic")
				default:
					err = xerrors.New(fmt.Sprint(x))
				}
				if onPanic != nil {
					onPanic()
				}

				logger.Error(r.Context(), err, "httpserver panic recovered",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"panic.stack", string(debug.Stack()),
				)

				WriteDetail(w, http.StatusInternalServerError, "Internal Server Error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
