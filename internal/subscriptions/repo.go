package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shelfwise-backend/pkg/db"
	"github.com/angelmondragon/shelfwise-backend/pkg/db/models"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
)

// PendingPerUserBookIndex keeps at most one pending subscription per (user, book).
const PendingPerUserBookIndex = "subscriptions_one_pending_per_user_book"

const renewMaxAttempts = 3

// Repository persists subscriptions. Status changes are conditional updates so
// concurrent webhook and poll reconciliations cannot double-apply.
type Repository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByExternalReference(ctx context.Context, reference string) (*models.Subscription, error)
	FindByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	FindByUserBook(ctx context.Context, userID, bookID uuid.UUID) (*models.Subscription, error)
	FindPendingForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindPendingForUserBook(ctx context.Context, userID, bookID uuid.UUID) (*models.Subscription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus, paidAt *time.Time) (bool, error)
	RecordGatewayStatus(ctx context.Context, id uuid.UUID, status enums.GatewayStatus) error
	Renew(ctx context.Context, id, userID uuid.UUID) (*models.Subscription, error)
	AttachPayment(ctx context.Context, id uuid.UUID, reference string, amountMinor int64, currency string) error
	ListActiveEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error)
	ListActiveEndingBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Subscription, error)
	ListPendingWithReference(ctx context.Context, after, before time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	db   *gorm.DB
	logg *logger.Logger
	now  func() time.Time
}

// NewRepository binds a subscription repository to the provided database.
func NewRepository(conn *gorm.DB, logg *logger.Logger) Repository {
	return &repository{db: conn, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	if err := validateNew(sub); err != nil {
		return err
	}
	sub.Status = enums.SubscriptionStatusPending
	sub.PaidAt = nil
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a pending subscription already exists for this book")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
	}
	return nil
}

func validateNew(sub *models.Subscription) error {
	switch {
	case sub == nil:
		return errValidation("subscription is required")
	case sub.UserID == uuid.Nil:
		return errValidation("user is required")
	case sub.BookID == uuid.Nil:
		return errValidation("book is required")
	case strings.TrimSpace(sub.Plan) == "":
		return errValidation("plan is required")
	case !sub.Price.IsPositive():
		return errValidation("price must be greater than zero")
	case sub.DurationDays <= 0:
		return errValidation("duration must be greater than zero")
	case strings.TrimSpace(sub.MobileNumber) == "":
		return errValidation("mobile number is required")
	case strings.TrimSpace(sub.ServiceProvider) == "":
		return errValidation("service provider is required")
	case strings.TrimSpace(sub.AccountName) == "":
		return errValidation("account name is required")
	case !sub.EndDate.After(sub.StartDate):
		return errValidation("end date must be after start date")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByExternalReference(ctx context.Context, reference string) (*models.Subscription, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, errNotFound()
	}
	return r.first(ctx, r.db.WithContext(ctx).Where("external_reference = ?", reference))
}

func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions")
	}
	return subs, nil
}

// FindByUserBook returns the most relevant subscription for a book: the
// active one when present, otherwise the most recent row.
func (r *repository) FindByUserBook(ctx context.Context, userID, bookID uuid.UUID) (*models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Order("CASE WHEN status = 'active' THEN 0 ELSE 1 END, created_at DESC")
	return r.first(ctx, query)
}

// FindPendingForUser returns the latest pending subscription or nil. More than
// one pending row is an anomaly and gets logged.
func (r *repository) FindPendingForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.SubscriptionStatusPending).
		Order("created_at DESC").
		Limit(2).
		Find(&subs).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find pending subscription")
	}
	if len(subs) == 0 {
		return nil, nil
	}
	if len(subs) > 1 && r.logg != nil {
		logCtx := r.logg.WithUserID(ctx, userID.String())
		logCtx = r.logg.WithSubscriptionID(logCtx, subs[0].ID.String())
		r.logg.Warn(logCtx, "multiple pending subscriptions for user; using latest")
	}
	return &subs[0], nil
}

func (r *repository) FindPendingForUserBook(ctx context.Context, userID, bookID uuid.UUID) (*models.Subscription, error) {
	sub, err := r.first(ctx, r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ? AND status = ?", userID, bookID, enums.SubscriptionStatusPending).
		Order("created_at DESC"))
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, nil
	}
	return sub, err
}

// UpdateStatus moves a subscription into status only from its allowed
// predecessor. It reports false without error when the row is already in the
// target status. paid_at is only kept while the row is active.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus, paidAt *time.Time) (bool, error) {
	from, ok := status.Predecessor()
	if !ok {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return false, err
		}
		return false, errInvalidTransition(current.Status, status)
	}

	now := r.now()
	updates := map[string]any{
		"status":     status,
		"updated_at": now,
	}
	if status == enums.SubscriptionStatusActive {
		if paidAt == nil {
			paidAt = &now
		}
		updates["paid_at"] = paidAt.UTC()
	} else {
		updates["paid_at"] = nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update subscription status")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if current.Status == status {
		return false, nil
	}
	return false, errInvalidTransition(current.Status, status)
}

func (r *repository) RecordGatewayStatus(ctx context.Context, id uuid.UUID, status enums.GatewayStatus) error {
	// UpdateColumn leaves updated_at alone; the poll window is anchored on it.
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		UpdateColumn("gateway_status", string(status)).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record gateway status")
	}
	return nil
}

// Renew extends end_date by one plan duration. The write is a compare-and-set
// on the previous end_date so concurrent renewals each add exactly one period.
func (r *repository) Renew(ctx context.Context, id, userID uuid.UUID) (*models.Subscription, error) {
	for attempt := 0; attempt < renewMaxAttempts; attempt++ {
		sub, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub.UserID != userID {
			return nil, errForbidden()
		}
		if sub.Status != enums.SubscriptionStatusActive {
			return nil, errInvalidState(sub.Status, "renew")
		}

		newEnd := sub.EndDate.Add(sub.Duration())
		res := r.db.WithContext(ctx).
			Model(&models.Subscription{}).
			Where("id = ? AND status = ? AND end_date = ?", id, enums.SubscriptionStatusActive, sub.EndDate).
			Updates(map[string]any{"end_date": newEnd, "updated_at": r.now()})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "renew subscription")
		}
		if res.RowsAffected > 0 {
			return r.FindByID(ctx, id)
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription changed concurrently; retry")
}

// AttachPayment stores the gateway reference on a subscription that is still pending.
func (r *repository) AttachPayment(ctx context.Context, id uuid.UUID, reference string, amountMinor int64, currency string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, enums.SubscriptionStatusPending).
		Updates(map[string]any{
			"external_reference": reference,
			"amount_minor":       amountMinor,
			"currency":           currency,
			"gateway_status":     string(enums.GatewayStatusPending),
			"updated_at":         r.now(),
		})
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, res.Error, "payment reference already in use")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "attach payment")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return errInvalidState(current.Status, "pay for")
}

func (r *repository) ListActiveEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error) {
	return r.list(ctx, limit, "end_date ASC",
		"status = ? AND end_date <= ?", enums.SubscriptionStatusActive, cutoff)
}

func (r *repository) ListActiveEndingBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Subscription, error) {
	return r.list(ctx, limit, "end_date ASC",
		"status = ? AND end_date > ? AND end_date <= ?", enums.SubscriptionStatusActive, from, to)
}

// ListPendingWithReference finds pending subscriptions whose payment was
// initialized inside (after, before]. AttachPayment stamps updated_at.
func (r *repository) ListPendingWithReference(ctx context.Context, after, before time.Time, limit int) ([]models.Subscription, error) {
	return r.list(ctx, limit, "updated_at ASC",
		"status = ? AND external_reference IS NOT NULL AND updated_at > ? AND updated_at <= ?",
		enums.SubscriptionStatusPending, after, before)
}

func (r *repository) list(ctx context.Context, limit int, order string, query string, args ...any) ([]models.Subscription, error) {
	q := r.db.WithContext(ctx).Where(query, args...).Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var subs []models.Subscription
	if err := q.Find(&subs).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions")
	}
	return subs, nil
}

func (r *repository) first(_ context.Context, query *gorm.DB) (*models.Subscription, error) {
	var sub models.Subscription
	if err := query.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	return &sub, nil
}
