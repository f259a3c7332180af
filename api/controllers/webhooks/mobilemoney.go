package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/shelfwise-backend/api/responses"
	mobilemoneywebhook "github.com/angelmondragon/shelfwise-backend/internal/webhooks/mobilemoney"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/mobilemoney"
)

const maxWebhookBody = 1 << 20

type MobileMoneyWebhookService interface {
	HandleEvent(ctx context.Context, event *mobilemoneywebhook.Event) (mobilemoneywebhook.Outcome, error)
}

type signatureVerifier interface {
	VerifySignature(raw []byte, header string) bool
}

// MobileMoneyWebhook authenticates processor callbacks over the raw body and
// hands charge events to reconciliation. Once the signature passes the
// processor always gets 200.
func MobileMoneyWebhook(svc MobileMoneyWebhookService, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(mobilemoney.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if !verifier.VerifySignature(payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch"))
			return
		}

		var event mobilemoneywebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "undecodable signed webhook payload")
			}
			acknowledge(w, mobilemoneywebhook.OutcomeIgnored)
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if logg != nil {
				logg.Error(ctx, "webhook event handling failed", err)
			}
			outcome = mobilemoneywebhook.OutcomeFailed
		}
		acknowledge(w, outcome)
	}
}

func acknowledge(w http.ResponseWriter, outcome mobilemoneywebhook.Outcome) {
	responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
}

