package subscriptions

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shelfwise-backend/api/middleware"
	"github.com/angelmondragon/shelfwise-backend/api/responses"
	"github.com/angelmondragon/shelfwise-backend/api/validators"
	subsvc "github.com/angelmondragon/shelfwise-backend/internal/subscriptions"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
)

const accountNameMaxLen = 120

type createSubscriptionRequest struct {
	BookID          string          `json:"book_id" validate:"required,uuid"`
	Plan            string          `json:"plan" validate:"required,max=64"`
	Price           decimal.Decimal `json:"price"`
	DurationDays    int             `json:"duration_days" validate:"required,gt=0"`
	MobileNumber    string          `json:"mobile_number" validate:"required,msisdn"`
	ServiceProvider string          `json:"service_provider" validate:"required,max=32"`
	AccountName     string          `json:"account_name" validate:"required,max=120"`
}

type initializePaymentRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
	Email          string `json:"email" validate:"omitempty,email"`
	Amount         *int64 `json:"amount,omitempty"`
}

type initializePaymentResponse struct {
	Subscription     subsvc.SubscriptionDTO `json:"subscription"`
	AuthorizationURL string                 `json:"authorization_url,omitempty"`
	Instructions     string                 `json:"instructions,omitempty"`
	Reference        string                 `json:"reference"`
}

type renewRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Create stores a pending subscription, or returns the caller's existing
// pending one for the same book with 200.
func Create(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookID, err := validators.ParseUUID(payload.BookID, "book_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, created, err := svc.Create(r.Context(), userID, subsvc.CreateSubscriptionInput{
			BookID:          bookID,
			Plan:            validators.SanitizeString(payload.Plan, 64),
			Price:           payload.Price,
			DurationDays:    payload.DurationDays,
			MobileNumber:    strings.ReplaceAll(validators.SanitizeString(payload.MobileNumber, 20), " ", ""),
			ServiceProvider: validators.SanitizeString(payload.ServiceProvider, 32),
			AccountName:     validators.SanitizeString(payload.AccountName, accountNameMaxLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if created {
			responses.WriteSuccessStatus(w, http.StatusCreated, subsvc.FromModel(sub))
			return
		}
		responses.WriteSuccess(w, subsvc.FromModel(sub))
	}
}

// InitializePayment starts the mobile-money charge for a pending subscription.
func InitializePayment(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload initializePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := validators.ParseUUID(payload.SubscriptionID, "subscription_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		email := strings.TrimSpace(payload.Email)
		if email == "" {
			email = middleware.EmailFromContext(r.Context())
		}

		res, err := svc.InitializePayment(r.Context(), userID, subsvc.InitializePaymentInput{
			SubscriptionID: subID,
			Email:          email,
			AmountMinor:    payload.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, initializePaymentResponse{
			Subscription:     subsvc.FromModel(res.Subscription),
			AuthorizationURL: res.AuthorizationURL,
			Instructions:     res.Instructions,
			Reference:        res.Reference,
		})
	}
}

// Verify polls the gateway for the caller's payment reference and applies the
// resulting transition.
func Verify(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required"))
			return
		}

		res, err := svc.Reconcile(r.Context(), subsvc.ReconcileInput{
			Reference: reference,
			Source:    enums.ReconcileSourcePoll,
			UserID:    &userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newVerifyResponse(res))
	}
}

// Renew extends an active subscription by one plan duration.
func Renew(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload renewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := validators.ParseUUID(payload.SubscriptionID, "subscription_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Renew(r.Context(), userID, subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subsvc.FromModel(sub))
	}
}

func List(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subs, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subsvc.FromModels(subs))
	}
}

func Get(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := validators.ParseUUIDParam(r, "subscriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Get(r.Context(), userID, subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subsvc.FromModel(sub))
	}
}

// ForBook returns the caller's subscription for a book, preferring the active one.
func ForBook(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.GetForBook(r.Context(), userID, bookID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subsvc.FromModel(sub))
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func newVerifyResponse(res *subsvc.ReconcileResult) verifyResponse {
	status := ""
	if res.Subscription != nil {
		status = string(res.Subscription.Status)
	}
	switch enums.SubscriptionStatus(status) {
	case enums.SubscriptionStatusActive, enums.SubscriptionStatusExpired:
		return verifyResponse{Success: true, Message: "payment verified", Status: status}
	case enums.SubscriptionStatusFailed:
		return verifyResponse{Success: false, Message: "payment failed", Status: status}
	}
	return verifyResponse{Success: false, Message: "payment pending", Status: status}
}
