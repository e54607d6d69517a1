package jobs

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devfurlan/cuidly-sub007/api/responses"
	"github.com/devfurlan/cuidly-sub007/internal/billing"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

// SecretHeader is accepted alongside "Authorization: Bearer <secret>".
const SecretHeader = "X-Cron-Secret"

type JobRunner interface {
	RunNow(ctx context.Context, name string) (billing.SweepSummary, error)
}

// Run executes the job named in the path for an external scheduler. Per-row
// failures are reported in the summary with a 200.
func Run(runner JobRunner, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if runner == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job runner unavailable"))
			return
		}
		if !authorized(r, secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron secret"))
			return
		}

		name := chi.URLParam(r, "job")
		if logg != nil {
			ctx = logg.WithField(ctx, "job", name)
		}
		summary, err := runner.RunNow(ctx, name)
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "job run failed")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, summary)
	}
}

func authorized(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	provided := strings.TrimSpace(r.Header.Get(SecretHeader))
	if provided == "" {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			provided = strings.TrimSpace(raw[7:])
		}
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1
}
