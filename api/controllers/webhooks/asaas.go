package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/devfurlan/cuidly-sub007/api/responses"
	asaaswebhook "github.com/devfurlan/cuidly-sub007/internal/webhooks/asaas"
	"github.com/devfurlan/cuidly-sub007/pkg/asaas"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

type AsaasWebhookService interface {
	HandleEvent(ctx context.Context, event asaas.WebhookEvent, raw []byte) (asaaswebhook.Result, error)
}

type webhookAck struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// AsaasWebhook verifies and applies gateway lifecycle events. Only a verified
// signature lets the payload reach the service.
func AsaasWebhook(svc AsaasWebhookService, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if err := asaas.VerifySignature(secret, payload, r.Header.Get(asaas.SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature"))
			return
		}

		event, err := asaas.ParseWebhookEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		result, err := svc.HandleEvent(ctx, event, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, webhookAck{Received: true, Duplicate: result.Duplicate})
	}
}
