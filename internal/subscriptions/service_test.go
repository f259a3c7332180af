package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shelfwise-backend/pkg/db/models"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/mobilemoney"
)

type stubGateway struct {
	initParams  []mobilemoney.InitializeParams
	initErr     error
	verifyCalls []string
	verify      map[string]*mobilemoney.VerifyResult
	verifyErr   error
	onVerify    func()
}

func (g *stubGateway) Initialize(_ context.Context, params mobilemoney.InitializeParams) (*mobilemoney.InitializeResult, error) {
	g.initParams = append(g.initParams, params)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &mobilemoney.InitializeResult{
		AuthorizationURL: "https://checkout.example/" + params.Reference,
		Instructions:     "Approve the prompt on your phone",
		Reference:        params.Reference,
	}, nil
}

func (g *stubGateway) Verify(_ context.Context, reference string) (*mobilemoney.VerifyResult, error) {
	g.verifyCalls = append(g.verifyCalls, reference)
	if g.onVerify != nil {
		g.onVerify()
	}
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	res, ok := g.verify[reference]
	if !ok {
		return &mobilemoney.VerifyResult{Reference: reference, Status: enums.GatewayStatusPending}, nil
	}
	return res, nil
}

type recordingNotifier struct {
	kinds []enums.NotificationType
}

func (n *recordingNotifier) Notify(_ context.Context, _, _ uuid.UUID, kind enums.NotificationType, _, _ string) error {
	n.kinds = append(n.kinds, kind)
	return nil
}

type serviceFixture struct {
	svc      Service
	repo     Repository
	gateway  *stubGateway
	notifier *recordingNotifier
	now      time.Time
	refs     []string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:     newTestRepo(t),
		gateway:  &stubGateway{verify: map[string]*mobilemoney.VerifyResult{}},
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
		refs:     []string{"ref-1", "ref-2", "ref-3"},
	}
	svc, err := NewService(ServiceParams{
		Repo:     f.repo,
		Gateway:  f.gateway,
		Currency: "ghs",
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Notifier: f.notifier,
		Clock:    func() time.Time { return f.now },
		NewReference: func() string {
			ref := f.refs[0]
			f.refs = f.refs[1:]
			return ref
		},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func monthlyInput(bookID uuid.UUID) CreateSubscriptionInput {
	return CreateSubscriptionInput{
		BookID:          bookID,
		Plan:            "monthly",
		Price:           decimal.NewFromInt(20),
		DurationDays:    30,
		MobileNumber:    "0244000000",
		ServiceProvider: "mtn",
		AccountName:     "Ama Reader",
	}
}

func TestServiceCreateComputesEndDate(t *testing.T) {
	f := newServiceFixture(t)
	sub, created, err := f.svc.Create(context.Background(), uuid.New(), monthlyInput(uuid.New()))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, enums.SubscriptionStatusPending, sub.Status)
	require.True(t, sub.StartDate.Equal(f.now))
	require.True(t, sub.EndDate.Equal(f.now.AddDate(0, 0, 30)))
	require.Nil(t, sub.PaidAt)
	require.Empty(t, f.gateway.initParams, "create must not call the gateway")
}

func TestServiceCreateReturnsExistingPending(t *testing.T) {
	f := newServiceFixture(t)
	userID, bookID := uuid.New(), uuid.New()

	first, created, err := f.svc.Create(context.Background(), userID, monthlyInput(bookID))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.svc.Create(context.Background(), userID, monthlyInput(bookID))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	subs, err := f.svc.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestServiceCreateValidation(t *testing.T) {
	f := newServiceFixture(t)
	input := monthlyInput(uuid.New())
	input.DurationDays = 0
	_, _, err := f.svc.Create(context.Background(), uuid.New(), input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = f.svc.Create(context.Background(), uuid.Nil, monthlyInput(uuid.New()))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type racingRepo struct {
	Repository
	winner *models.Subscription
	calls  int
}

func (r *racingRepo) FindPendingForUserBook(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	r.calls++
	if r.calls == 1 {
		return nil, nil
	}
	return r.winner, nil
}

func (r *racingRepo) Create(context.Context, *models.Subscription) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "a pending subscription already exists for this book")
}

func TestServiceCreateRaceReturnsWinner(t *testing.T) {
	winner := &models.Subscription{ID: uuid.New(), Status: enums.SubscriptionStatusPending}
	svc, err := NewService(ServiceParams{
		Repo:     &racingRepo{winner: winner},
		Gateway:  &stubGateway{},
		Currency: "GHS",
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)

	sub, created, err := svc.Create(context.Background(), uuid.New(), monthlyInput(uuid.New()))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, winner.ID, sub.ID)
}

func TestServiceMonthlyPaymentActivates(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)

	amount := int64(2000)
	res, err := f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "reader@example.com", AmountMinor: &amount})
	require.NoError(t, err)
	require.Equal(t, "ref-1", res.Reference)
	require.Equal(t, "https://checkout.example/ref-1", res.AuthorizationURL)
	require.Len(t, f.gateway.initParams, 1)
	require.Equal(t, int64(2000), f.gateway.initParams[0].AmountMinor)
	require.Equal(t, "GHS", f.gateway.initParams[0].Currency)
	require.Equal(t, "mtn", f.gateway.initParams[0].Metadata.ServiceProvider)

	f.gateway.verify["ref-1"] = &mobilemoney.VerifyResult{Reference: "ref-1", Status: enums.GatewayStatusSuccess, AmountMinor: 2000, Currency: "GHS"}
	f.now = f.now.Add(5 * time.Minute)

	out, err := f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-1", Source: enums.ReconcileSourceWebhook})
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, enums.SubscriptionStatusActive, out.Subscription.Status)
	require.NotNil(t, out.Subscription.PaidAt)
	require.True(t, out.Subscription.EndDate.Equal(sub.StartDate.AddDate(0, 0, 30)))
	require.Equal(t, []enums.NotificationType{enums.NotificationTypePaymentConfirmed}, f.notifier.kinds)

	again, err := f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-1", Source: enums.ReconcileSourcePoll})
	require.NoError(t, err)
	require.False(t, again.Applied, "second success must not transition again")
	require.Equal(t, enums.SubscriptionStatusActive, again.Subscription.Status)
	require.True(t, again.Subscription.PaidAt.Equal(*out.Subscription.PaidAt))
	require.Len(t, f.notifier.kinds, 1)
}

func TestServiceAbandonedPaymentFailsOnce(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)
	f.refs = []string{"ref-2"}
	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "reader@example.com"})
	require.NoError(t, err)

	f.gateway.verify["ref-2"] = &mobilemoney.VerifyResult{Reference: "ref-2", Status: enums.GatewayStatusAbandoned}

	out, err := f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-2", Source: enums.ReconcileSourceWebhook})
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, enums.SubscriptionStatusFailed, out.Subscription.Status)
	require.Nil(t, out.Subscription.PaidAt)

	redelivered, err := f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-2", Source: enums.ReconcileSourceWebhook})
	require.NoError(t, err, "redelivery is a no-op, not an error")
	require.False(t, redelivered.Applied)
	require.Equal(t, enums.SubscriptionStatusFailed, redelivered.Subscription.Status)
}

func TestServiceReconcileLosingRaceIsNoop(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)
	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "reader@example.com"})
	require.NoError(t, err)

	// The webhook activates the row while the poll is still verifying.
	f.gateway.verify["ref-1"] = &mobilemoney.VerifyResult{Reference: "ref-1", Status: enums.GatewayStatusFailed}
	f.gateway.onVerify = func() {
		f.gateway.onVerify = nil
		_, err := f.repo.UpdateStatus(ctx, sub.ID, enums.SubscriptionStatusActive, nil)
		require.NoError(t, err)
	}

	out, err := f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-1", Source: enums.ReconcileSourcePoll})
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, enums.SubscriptionStatusActive, out.Subscription.Status)

	stored, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	require.NotNil(t, stored.PaidAt)
}

func TestServiceReconcilePendingLeavesStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)
	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "reader@example.com"})
	require.NoError(t, err)

	out, err := f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-1", Source: enums.ReconcileSourcePoll, UserID: &userID})
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, enums.GatewayStatusPending, out.GatewayStatus)
	require.Equal(t, enums.SubscriptionStatusPending, out.Subscription.Status)
}

func TestServiceReconcileUnderpaymentFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)
	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "reader@example.com"})
	require.NoError(t, err)

	f.gateway.verify["ref-1"] = &mobilemoney.VerifyResult{Reference: "ref-1", Status: enums.GatewayStatusSuccess, AmountMinor: 1500, Currency: "GHS"}
	out, err := f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-1", Source: enums.ReconcileSourceWebhook})
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusFailed, out.Subscription.Status)
}

func TestServiceReconcileOwnershipAndLookup(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)
	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "reader@example.com"})
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-1", Source: enums.ReconcileSourcePoll, UserID: &stranger})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.Empty(t, f.gateway.verifyCalls, "non-owners must not trigger verification")

	_, err = f.svc.Reconcile(ctx, ReconcileInput{Reference: "unknown", Source: enums.ReconcileSourceWebhook})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceReconcileGatewayError(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)
	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "reader@example.com"})
	require.NoError(t, err)

	f.gateway.verifyErr = errors.New("connection reset")
	_, err = f.svc.Reconcile(ctx, ReconcileInput{Reference: "ref-1", Source: enums.ReconcileSourceWebhook})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))

	stored, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusPending, stored.Status)
}

func TestServiceInitializePaymentGuards(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)

	_, err = f.svc.InitializePayment(ctx, uuid.New(), InitializePaymentInput{SubscriptionID: sub.ID, Email: "x@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	wrong := int64(1999)
	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "x@example.com", AmountMinor: &wrong})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: uuid.New(), Email: "x@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Empty(t, f.gateway.initParams)

	f.gateway.initErr = pkgerrors.New(pkgerrors.CodeGateway, "payment gateway rejected the request")
	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "x@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	stored, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusPending, stored.Status)
	require.Nil(t, stored.ExternalReference, "failed initialization stores no reference")

	f.gateway.initErr = nil
	res, err := f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "x@example.com"})
	require.NoError(t, err, "gateway failures are retryable")
	require.NotEmpty(t, res.Reference)
}

func TestServiceInitializePaymentRequiresPending(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)
	_, err = f.repo.UpdateStatus(ctx, sub.ID, enums.SubscriptionStatusFailed, nil)
	require.NoError(t, err)

	_, err = f.svc.InitializePayment(ctx, userID, InitializePaymentInput{SubscriptionID: sub.ID, Email: "x@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Empty(t, f.gateway.initParams)
}

func TestServiceRenew(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)

	_, err = f.svc.Renew(ctx, userID, sub.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "pending subscriptions cannot be renewed")

	_, err = f.repo.UpdateStatus(ctx, sub.ID, enums.SubscriptionStatusActive, nil)
	require.NoError(t, err)

	_, err = f.svc.Renew(ctx, uuid.New(), sub.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	renewed, err := f.svc.Renew(ctx, userID, sub.ID)
	require.NoError(t, err)
	require.True(t, renewed.EndDate.Equal(sub.EndDate.AddDate(0, 0, 30)))
	require.Equal(t, enums.SubscriptionStatusActive, renewed.Status)
}

func TestServiceGetForBookAndGet(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID, bookID := uuid.New(), uuid.New()

	_, err := f.svc.GetForBook(ctx, userID, bookID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(bookID))
	require.NoError(t, err)

	got, err := f.svc.GetForBook(ctx, userID, bookID)
	require.NoError(t, err)
	require.Equal(t, sub.ID, got.ID)

	_, err = f.svc.Get(ctx, uuid.New(), sub.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestServiceExpireEnded(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub, _, err := f.svc.Create(ctx, userID, monthlyInput(uuid.New()))
	require.NoError(t, err)
	_, err = f.repo.UpdateStatus(ctx, sub.ID, enums.SubscriptionStatusActive, nil)
	require.NoError(t, err)

	count, err := f.svc.ExpireEnded(ctx, f.now.AddDate(0, 0, 29), 10)
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = f.svc.ExpireEnded(ctx, f.now.AddDate(0, 0, 31), 10)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Contains(t, f.notifier.kinds, enums.NotificationTypeSubscriptionExpired)

	stored, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusExpired, stored.Status)
}
