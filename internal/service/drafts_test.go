package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/numbering"
	"fakturin/backend/internal/store"
	"fakturin/backend/internal/store/memory"
)

// fixedDay is 10:00 in the business zone (UTC+05:30) on 2024-01-01.
var fixedDay = time.Date(2024, time.January, 1, 4, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     store.Repository
	counters *memory.Store
	customer domain.Customer
	rice     domain.Product
	oil      domain.Product
	clock    *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T, wrap func(*memory.Store) store.Repository) fixture {
	t.Helper()
	base := memory.New()
	var repo store.Repository = base
	if wrap != nil {
		repo = wrap(base)
	}

	clock := &testClock{now: fixedDay}
	allocator := numbering.New(base, "invoice", 330*time.Minute).WithClock(clock.Now)
	logger, _ := test.NewNullLogger()
	svc := New(repo, allocator, Settings{DraftTTL: time.Hour, Logger: logger}).WithClock(clock.Now)

	ctx := context.Background()
	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Asha Verma", Phone: "9876543210", Gender: domain.GenderFemale})
	require.NoError(t, err)
	rice, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Basmati Rice 5kg", CostPrice: decimal.NewFromInt(520), SellingPrice: decimal.NewFromInt(640), SKUCode: "8901234500011",
	})
	require.NoError(t, err)
	oil, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Sunflower Oil 1L", CostPrice: decimal.NewFromInt(135), SellingPrice: decimal.RequireFromString("165.50"), SKUCode: "8901234500028",
	})
	require.NoError(t, err)

	return fixture{svc: svc, repo: repo, counters: base, customer: customer, rice: rice, oil: oil, clock: clock}
}

// readyDraft returns a draft with a customer, two units of rice and one oil.
func (f fixture) readyDraft(t *testing.T) domain.Draft {
	t.Helper()
	ctx := context.Background()
	draft := f.svc.NewDraft(ctx)
	_, err := f.svc.SetDraftCustomer(ctx, draft.ID, f.customer.ID)
	require.NoError(t, err)
	_, err = f.svc.AddDraftProduct(ctx, draft.ID, f.rice.ID)
	require.NoError(t, err)
	_, err = f.svc.AddDraftProduct(ctx, draft.ID, f.rice.ID)
	require.NoError(t, err)
	draft, err = f.svc.AddDraftProductBySKU(ctx, draft.ID, " 8901234500028 ")
	require.NoError(t, err)
	return draft
}

func TestSubmitDraftCommitsInvoiceAndClearsDraft(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	draft := f.readyDraft(t)

	require.Len(t, draft.Items, 2)
	assert.Equal(t, 2, draft.Items[0].Quantity)
	assert.Equal(t, 3, draft.Totals.Quantity)
	assert.True(t, draft.Totals.Amount.Equal(decimal.RequireFromString("1445.50")), draft.Totals.Amount.String())

	preview, err := f.svc.PreviewDraftNumber(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", preview.InvoiceNumber)
	assert.True(t, preview.Advisory)

	inv, err := f.svc.SubmitDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", inv.InvoiceNumber)
	assert.Equal(t, f.customer.ID, inv.Customer.ID)
	assert.Equal(t, 3, inv.TotalQuantity)
	assert.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("1445.50")))
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), inv.IssueDate)

	committed, err := f.svc.Draft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftCommitted, committed.Status)
	assert.Nil(t, committed.Customer)
	assert.Empty(t, committed.Items)
	assert.Equal(t, inv.ID, committed.InvoiceID)
	assert.Equal(t, "INV-1", committed.InvoiceNumber)

	_, err = f.svc.SubmitDraft(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	_, err = f.svc.AddDraftProduct(ctx, draft.ID, f.oil.ID)
	assert.ErrorIs(t, err, store.ErrValidation)

	stored, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, stored.InvoiceNumber)
}

func TestPreviewDoesNotReserveNumber(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.readyDraft(t)
	second := f.readyDraft(t)

	for i := 0; i < 3; i++ {
		preview, err := f.svc.PreviewDraftNumber(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "INV-1", preview.InvoiceNumber)
	}

	stolen, err := f.svc.SubmitDraft(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", stolen.InvoiceNumber)

	inv, err := f.svc.SubmitDraft(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2", inv.InvoiceNumber)
}

type blockingRepo struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	creates atomic.Int32
}

func (r *blockingRepo) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	r.creates.Add(1)
	r.entered <- struct{}{}
	<-r.release
	return r.Store.CreateInvoice(ctx, inv)
}

func TestSubmitWhileInFlightIsRejected(t *testing.T) {
	repo := &blockingRepo{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, func(base *memory.Store) store.Repository {
		repo.Store = base
		return repo
	})
	ctx := context.Background()
	draft := f.readyDraft(t)

	type result struct {
		inv domain.Invoice
		err error
	}
	done := make(chan result, 1)
	go func() {
		inv, err := f.svc.SubmitDraft(ctx, draft.ID)
		done <- result{inv, err}
	}()

	<-repo.entered
	inFlight, err := f.svc.Draft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftSubmitting, inFlight.Status)

	_, err = f.svc.SubmitDraft(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	_, err = f.svc.SetDraftQuantity(ctx, draft.ID, f.rice.ID, 5)
	assert.ErrorIs(t, err, store.ErrValidation)
	assert.Error(t, f.svc.DiscardDraft(ctx, draft.ID))

	close(repo.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "INV-1", res.inv.InvoiceNumber)
	assert.EqualValues(t, 1, repo.creates.Load())

	next, err := f.counters.PeekNextSequence(ctx, "invoice", "20240101")
	require.NoError(t, err)
	assert.EqualValues(t, 2, next)
}

type flakyRepo struct {
	*memory.Store
	failures atomic.Int32
}

func (r *flakyRepo) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if r.failures.Add(-1) >= 0 {
		return nil, store.Unavailable("insert invoice", errors.New("connection reset by peer"))
	}
	return r.Store.CreateInvoice(ctx, inv)
}

func TestFailedSubmitKeepsDraftAndSkipsNumber(t *testing.T) {
	repo := &flakyRepo{}
	repo.failures.Store(1)
	f := newFixture(t, func(base *memory.Store) store.Repository {
		repo.Store = base
		return repo
	})
	ctx := context.Background()
	draft := f.readyDraft(t)

	_, err := f.svc.SubmitDraft(ctx, draft.ID)
	require.ErrorIs(t, err, store.ErrStorageUnavailable)

	failed, err := f.svc.Draft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftFailed, failed.Status)
	assert.NotEmpty(t, failed.LastError)
	require.NotNil(t, failed.Customer)
	assert.Equal(t, f.customer.ID, failed.Customer.ID)
	assert.Equal(t, draft.Items, failed.Items)

	inv, err := f.svc.SubmitDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2", inv.InvoiceNumber)
}

func TestSubmitRequiresCustomerAndItems(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	draft := f.svc.NewDraft(ctx)
	_, err := f.svc.SubmitDraft(ctx, draft.ID)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = f.svc.SetDraftCustomer(ctx, draft.ID, f.customer.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitDraft(ctx, draft.ID)
	assert.ErrorIs(t, err, store.ErrValidation)

	still, err := f.svc.Draft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftIdle, still.Status)

	next, err := f.counters.PeekNextSequence(ctx, "invoice", "20240101")
	require.NoError(t, err)
	assert.EqualValues(t, 1, next)
}

func TestDraftEditsRecomputeTotals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	draft := f.readyDraft(t)

	_, err := f.svc.SetDraftQuantity(ctx, draft.ID, f.rice.ID, 0)
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = f.svc.SetDraftQuantity(ctx, draft.ID, "missing", 2)
	assert.ErrorIs(t, err, store.ErrNotFound)

	draft, err = f.svc.SetDraftQuantity(ctx, draft.ID, f.rice.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, draft.Totals.Quantity)
	assert.True(t, draft.Totals.Amount.Equal(decimal.RequireFromString("2725.50")))

	draft, err = f.svc.RemoveDraftProduct(ctx, draft.ID, f.oil.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, draft.Totals.Quantity)
	assert.True(t, draft.Totals.Amount.Equal(decimal.NewFromInt(2560)))

	_, err = f.svc.AddDraftProduct(ctx, draft.ID, "no-such-product")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.svc.SetDraftCustomer(ctx, draft.ID, "no-such-customer")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIdleDraftsExpire(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	draft := f.svc.NewDraft(ctx)

	f.clock.Advance(30 * time.Minute)
	_, err := f.svc.Draft(ctx, draft.ID)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Minute)
	_, err = f.svc.Draft(ctx, draft.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDiscardDraft(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	draft := f.readyDraft(t)

	require.NoError(t, f.svc.DiscardDraft(ctx, draft.ID))
	_, err := f.svc.Draft(ctx, draft.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.svc.DiscardDraft(ctx, draft.ID), store.ErrNotFound)
}

func TestCommitIsLogged(t *testing.T) {
	base := memory.New()
	logger, hook := test.NewNullLogger()
	clock := &testClock{now: fixedDay}
	svc := New(base, numbering.New(base, "invoice", 330*time.Minute).WithClock(clock.Now), Settings{Logger: logger}).WithClock(clock.Now)
	f := fixture{svc: svc, repo: base, counters: base, clock: clock}

	ctx := context.Background()
	var err error
	f.customer, err = svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Walk-in"})
	require.NoError(t, err)
	f.rice, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Rice", SellingPrice: decimal.NewFromInt(10), SKUCode: "r1"})
	require.NoError(t, err)
	f.oil, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Oil", SellingPrice: decimal.NewFromInt(5), SKUCode: "8901234500028"})
	require.NoError(t, err)

	draft := f.readyDraft(t)
	_, err = svc.SubmitDraft(ctx, draft.ID)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "INV-1", entry.Data["invoice_number"])
}
