package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shelfwise-backend/pkg/db/models"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
	"github.com/angelmondragon/shelfwise-backend/pkg/mobilemoney"
)

// Notifier receives lifecycle notifications for readers. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, userID, subscriptionID uuid.UUID, kind enums.NotificationType, title, message string) error
}

// Service defines the subscription lifecycle surface.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateSubscriptionInput) (*models.Subscription, bool, error)
	InitializePayment(ctx context.Context, userID uuid.UUID, input InitializePaymentInput) (*InitializePaymentResult, error)
	Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error)
	Renew(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error)
	Get(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	GetForBook(ctx context.Context, userID, bookID uuid.UUID) (*models.Subscription, error)
	ExpireEnded(ctx context.Context, now time.Time, limit int) (int, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo         Repository
	Gateway      mobilemoney.Gateway
	Currency     string
	Logger       *logger.Logger
	Metrics      *metrics.PaymentMetrics
	Notifier     Notifier
	Clock        func() time.Time
	NewReference func() string
}

type service struct {
	repo     Repository
	gateway  mobilemoney.Gateway
	currency string
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
	notifier Notifier
	clock    func() time.Time
	newRef   func() string
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("currency must be an ISO 4217 code")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	newRef := params.NewReference
	if newRef == nil {
		newRef = mobilemoney.NewReference
	}
	return &service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		currency: currency,
		logg:     params.Logger,
		metrics:  params.Metrics,
		notifier: params.Notifier,
		clock:    clock,
		newRef:   newRef,
	}, nil
}

// Create returns the reader's pending subscription for the book when one
// exists, otherwise it stores a new pending one. The bool reports creation.
func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateSubscriptionInput) (*models.Subscription, bool, error) {
	if userID == uuid.Nil {
		return nil, false, errValidation("user id is required")
	}
	if input.BookID == uuid.Nil {
		return nil, false, errValidation("book id is required")
	}

	existing, err := s.repo.FindPendingForUserBook(ctx, userID, input.BookID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	start := s.clock().UTC().Truncate(time.Microsecond)
	sub := &models.Subscription{
		UserID:          userID,
		BookID:          input.BookID,
		Plan:            strings.TrimSpace(input.Plan),
		Price:           input.Price,
		DurationDays:    input.DurationDays,
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, input.DurationDays),
		MobileNumber:    strings.TrimSpace(input.MobileNumber),
		ServiceProvider: strings.TrimSpace(input.ServiceProvider),
		AccountName:     strings.TrimSpace(input.AccountName),
		Status:          enums.SubscriptionStatusPending,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil, false, err
		}
		winner, findErr := s.repo.FindPendingForUserBook(ctx, userID, input.BookID)
		if findErr != nil {
			return nil, false, findErr
		}
		if winner == nil {
			return nil, false, err
		}
		return winner, false, nil
	}

	logCtx := s.logg.WithSubscriptionID(ctx, sub.ID.String())
	s.logg.Info(logCtx, "subscription created")
	return sub, true, nil
}

// InitializePayment asks the gateway for a mobile-money charge and stores the
// reference on the subscription. Gateway failures leave the subscription pending.
func (s *service) InitializePayment(ctx context.Context, userID uuid.UUID, input InitializePaymentInput) (*InitializePaymentResult, error) {
	if input.SubscriptionID == uuid.Nil {
		return nil, errValidation("subscription id is required")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, errValidation("email is required")
	}

	sub, err := s.repo.FindByID(ctx, input.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, errForbidden()
	}
	if sub.Status != enums.SubscriptionStatusPending {
		return nil, errInvalidState(sub.Status, "pay for")
	}

	expected := sub.PriceMinor()
	if input.AmountMinor != nil && *input.AmountMinor != expected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match the subscription price").
			WithDetails(map[string]any{"expected_amount": expected, "amount": *input.AmountMinor})
	}

	logCtx := s.logg.WithSubscriptionID(ctx, sub.ID.String())
	reference := s.newRef()
	res, err := s.gateway.Initialize(ctx, mobilemoney.InitializeParams{
		Email:       email,
		AmountMinor: expected,
		Currency:    s.currency,
		Reference:   reference,
		Metadata: mobilemoney.Metadata{
			SubscriptionID:  sub.ID.String(),
			MobileNumber:    sub.MobileNumber,
			ServiceProvider: sub.ServiceProvider,
			AccountName:     sub.AccountName,
		},
	})
	if err != nil {
		s.logg.Error(s.logg.WithReference(logCtx, reference), "payment initialization failed", err)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment initialization failed")
		}
		return nil, err
	}
	if res.Reference != "" {
		reference = res.Reference
	}

	if err := s.repo.AttachPayment(ctx, sub.ID, reference, expected, s.currency); err != nil {
		return nil, err
	}
	sub.ExternalReference = &reference
	sub.AmountMinor = &expected
	currency := s.currency
	sub.Currency = &currency
	pending := string(enums.GatewayStatusPending)
	sub.GatewayStatus = &pending

	s.logg.Info(s.logg.WithReference(logCtx, reference), "payment initialized")
	return &InitializePaymentResult{
		Subscription:     sub,
		AuthorizationURL: res.AuthorizationURL,
		Instructions:     res.Instructions,
		Reference:        reference,
	}, nil
}

// Reconcile verifies a reference with the gateway and applies the resulting
// transition. Re-running it for an already applied outcome is a no-op.
func (s *service) Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, errValidation("reference is required")
	}
	source := input.Source
	if !source.IsValid() {
		source = enums.ReconcileSourcePoll
	}

	sub, err := s.repo.FindByExternalReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if input.UserID != nil && *input.UserID != sub.UserID {
		return nil, errForbidden()
	}

	logCtx := s.logg.WithSubscriptionID(s.logg.WithReference(ctx, reference), sub.ID.String())
	logCtx = s.logg.WithField(logCtx, "source", string(source))

	verified, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.logg.Error(logCtx, "payment verification failed", err)
		s.metrics.IncReconcile(string(source), string(sub.Status), metrics.OutcomeError)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment verification failed")
		}
		return nil, err
	}

	gatewayStatus := verified.Status
	if err := s.repo.RecordGatewayStatus(ctx, sub.ID, gatewayStatus); err != nil {
		s.logg.Error(logCtx, "failed to record gateway status", err)
	}

	target, ok := s.targetStatus(logCtx, sub, verified)
	if !ok || !enums.CanTransition(sub.Status, target) {
		s.metrics.IncReconcile(string(source), string(sub.Status), metrics.OutcomeNoop)
		return &ReconcileResult{Subscription: sub, GatewayStatus: gatewayStatus}, nil
	}

	var paidAt *time.Time
	if target == enums.SubscriptionStatusActive {
		now := s.clock().UTC()
		paidAt = &now
	}
	applied, err := s.repo.UpdateStatus(ctx, sub.ID, target, paidAt)
	if err != nil {
		if settled := s.settledElsewhere(ctx, sub.ID, err); settled != nil {
			s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
				"status": string(settled.Status),
				"target": string(target),
			}), "subscription already settled by a concurrent reconcile")
			s.metrics.IncReconcile(string(source), string(target), metrics.OutcomeNoop)
			return &ReconcileResult{Subscription: settled, GatewayStatus: gatewayStatus}, nil
		}
		s.metrics.IncReconcile(string(source), string(target), metrics.OutcomeError)
		return nil, err
	}

	outcome := metrics.OutcomeNoop
	if applied {
		outcome = metrics.OutcomeApplied
		s.logg.Info(s.logg.WithField(logCtx, "status", string(target)), "subscription status updated")
		if target == enums.SubscriptionStatusActive {
			s.notify(logCtx, sub, enums.NotificationTypePaymentConfirmed,
				"Payment confirmed",
				fmt.Sprintf("Your %s subscription is active until %s.", sub.Plan, sub.EndDate.Format("2 Jan 2006")))
		}
	}
	s.metrics.IncReconcile(string(source), string(target), outcome)

	fresh, err := s.repo.FindByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{Subscription: fresh, GatewayStatus: gatewayStatus, Applied: applied}, nil
}

// settledElsewhere returns the current row when a status write lost a race
// to another reconcile that already moved the subscription out of pending.
func (s *service) settledElsewhere(ctx context.Context, id uuid.UUID, err error) *models.Subscription {
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		return nil
	}
	current, findErr := s.repo.FindByID(ctx, id)
	if findErr != nil || current.Status == enums.SubscriptionStatusPending {
		return nil
	}
	return current
}

// targetStatus maps a verified gateway outcome to the subscription status it
// implies. Pending outcomes imply no change.
func (s *service) targetStatus(ctx context.Context, sub *models.Subscription, verified *mobilemoney.VerifyResult) (enums.SubscriptionStatus, bool) {
	switch verified.Status {
	case enums.GatewayStatusSuccess:
		expected := sub.PriceMinor()
		if sub.AmountMinor != nil {
			expected = *sub.AmountMinor
		}
		if verified.AmountMinor < expected {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"expected_amount": expected,
				"paid_amount":     verified.AmountMinor,
			}), "underpaid charge reported as success; marking failed")
			return enums.SubscriptionStatusFailed, true
		}
		if sub.Currency != nil && verified.Currency != "" && !strings.EqualFold(*sub.Currency, verified.Currency) {
			s.logg.Warn(s.logg.WithField(ctx, "paid_currency", verified.Currency), "charge settled in unexpected currency; marking failed")
			return enums.SubscriptionStatusFailed, true
		}
		return enums.SubscriptionStatusActive, true
	case enums.GatewayStatusAbandoned, enums.GatewayStatusFailed:
		return enums.SubscriptionStatusFailed, true
	default:
		return "", false
	}
}

// Renew extends an active subscription by one plan duration.
func (s *service) Renew(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if subscriptionID == uuid.Nil {
		return nil, errValidation("subscription id is required")
	}
	sub, err := s.repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, errForbidden()
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return nil, errInvalidState(sub.Status, "renew")
	}
	renewed, err := s.repo.Renew(ctx, subscriptionID, userID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithSubscriptionID(ctx, renewed.ID.String()), "subscription renewed")
	return renewed, nil
}

func (s *service) Get(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, errForbidden()
	}
	return sub, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	return s.repo.FindByUser(ctx, userID)
}

func (s *service) GetForBook(ctx context.Context, userID, bookID uuid.UUID) (*models.Subscription, error) {
	return s.repo.FindByUserBook(ctx, userID, bookID)
}

// ExpireEnded moves active subscriptions whose end date has passed to expired.
// It returns how many rows it transitioned.
func (s *service) ExpireEnded(ctx context.Context, now time.Time, limit int) (int, error) {
	subs, err := s.repo.ListActiveEndedBefore(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs error
	for i := range subs {
		sub := &subs[i]
		applied, err := s.repo.UpdateStatus(ctx, sub.ID, enums.SubscriptionStatusExpired, nil)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", sub.ID, err))
			continue
		}
		if !applied {
			continue
		}
		expired++
		logCtx := s.logg.WithSubscriptionID(ctx, sub.ID.String())
		s.logg.Info(logCtx, "subscription expired")
		s.notify(logCtx, sub, enums.NotificationTypeSubscriptionExpired,
			"Subscription expired",
			fmt.Sprintf("Your %s subscription has ended. Renew to keep reading.", sub.Plan))
	}
	return expired, errs
}

func (s *service) notify(ctx context.Context, sub *models.Subscription, kind enums.NotificationType, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, sub.UserID, sub.ID, kind, title, message); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to write notification")
	}
}
