package topup

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/ledger"
	"github.com/mrdcvlsc/food-reservation/internal/store"
	"github.com/mrdcvlsc/food-reservation/internal/testutil"
)

var (
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	admin   = domain.Actor{UserID: "cashier", Admin: true}
	student = domain.Actor{UserID: "u1"}
)

func newLifecycle(t *testing.T, wallet func(*store.Store) ledger.WalletStore) (*Lifecycle, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var ws ledger.WalletStore = s
	if wallet != nil {
		ws = wallet(s)
	}
	clock := testutil.NewDeterministicClock()
	comp := ledger.NewCompensator(s, clock,
		ledger.WithAttempts(2), ledger.WithBackoff(0), ledger.WithLogger(discard))
	l := New(s, ledger.NewWallet(ws, clock, discard), comp,
		WithClock(clock),
		WithIDGenerator(testutil.NewSequenceGenerator("top")),
		WithLogger(discard),
	)
	return l, s
}

func submit(t *testing.T, l *Lifecycle, amount string) domain.Topup {
	t.Helper()
	top, err := l.Submit(context.Background(), SubmitRequest{
		UserID:         "u1",
		Amount:         decimal.RequireFromString(amount),
		Provider:       domain.ProviderGCash,
		ProofReference: "uploads/receipt-1.png",
	})
	require.NoError(t, err)
	return top
}

func balance(t *testing.T, s *store.Store, userID string) string {
	t.Helper()
	w, err := s.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return domain.FormatMoney(w.Balance)
}

func TestSubmit(t *testing.T) {
	l, s := newLifecycle(t, nil)

	top := submit(t, l, "150.50")
	assert.Equal(t, "top-0001", top.ID)
	assert.Equal(t, domain.TopupPending, top.Status)
	assert.Nil(t, top.DecidedAt)

	stored, err := l.Get(context.Background(), top.ID, student)
	require.NoError(t, err)
	assert.Equal(t, "150.50", domain.FormatMoney(stored.Amount))
	assert.Equal(t, "uploads/receipt-1.png", stored.ProofReference)

	// Submitting never touches the wallet.
	assert.Equal(t, "0.00", balance(t, s, "u1"))
}

func TestSubmit_ProviderAnyCase(t *testing.T) {
	l, _ := newLifecycle(t, nil)
	ctx := context.Background()

	for in, want := range map[string]domain.Provider{"GCash": domain.ProviderGCash, "Maya": domain.ProviderMaya} {
		top, err := l.Submit(ctx, SubmitRequest{UserID: "u1", Amount: decimal.RequireFromString("50.00"), Provider: domain.Provider(in)})
		require.NoError(t, err, in)
		assert.Equal(t, want, top.Provider, in)

		stored, err := l.Get(ctx, top.ID, student)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Provider, in)
	}
}

func TestSubmit_MaxAmountRoundTrips(t *testing.T) {
	l, s := newLifecycle(t, nil)

	top := submit(t, l, "1000000.00")
	_, err := l.Decide(context.Background(), top.ID, domain.TopupApproved, "", admin)
	require.NoError(t, err)
	assert.Equal(t, "1000000.00", balance(t, s, "u1"))
}

func TestSubmit_Validation(t *testing.T) {
	l, _ := newLifecycle(t, nil)

	tests := []struct {
		name string
		req  SubmitRequest
		code domain.ErrorCode
	}{
		{"zero amount", SubmitRequest{UserID: "u1", Amount: decimal.Zero, Provider: domain.ProviderGCash}, domain.ErrCodeInvalidAmount},
		{"negative amount", SubmitRequest{UserID: "u1", Amount: decimal.RequireFromString("-5"), Provider: domain.ProviderMaya}, domain.ErrCodeInvalidAmount},
		{"sub-cent amount", SubmitRequest{UserID: "u1", Amount: decimal.RequireFromString("10.005"), Provider: domain.ProviderMaya}, domain.ErrCodeInvalidAmount},
		{"over max amount", SubmitRequest{UserID: "u1", Amount: decimal.RequireFromString("1000000.01"), Provider: domain.ProviderMaya}, domain.ErrCodeInvalidAmount},
		{"beyond int64 cents", SubmitRequest{UserID: "u1", Amount: decimal.RequireFromString("184467440737095566.16"), Provider: domain.ProviderGCash}, domain.ErrCodeInvalidAmount},
		{"unknown provider", SubmitRequest{UserID: "u1", Amount: decimal.NewFromInt(10), Provider: "paypal"}, domain.ErrCodeInvalidInput},
		{"missing user", SubmitRequest{Amount: decimal.NewFromInt(10), Provider: domain.ProviderGCash}, domain.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Submit(context.Background(), tt.req)
			assert.Equal(t, tt.code, domain.CodeOf(err))
		})
	}
}

func TestDecide_ApproveCredits(t *testing.T) {
	l, s := newLifecycle(t, nil)
	ctx := context.Background()
	top := submit(t, l, "50.00")

	decided, err := l.Decide(ctx, top.ID, domain.TopupApproved, "matched receipt", admin)
	require.NoError(t, err)
	assert.Equal(t, domain.TopupApproved, decided.Status)
	assert.Equal(t, "cashier", decided.DecidedBy)
	require.NotNil(t, decided.DecidedAt)
	assert.Equal(t, "50.00", balance(t, s, "u1"))

	stored, err := l.Get(ctx, top.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, "matched receipt", stored.Reason)
	assert.Equal(t, domain.TopupApproved, stored.Status)
}

func TestDecide_RejectHasNoLedgerEffect(t *testing.T) {
	l, s := newLifecycle(t, nil)
	top := submit(t, l, "50.00")

	decided, err := l.Decide(context.Background(), top.ID, domain.TopupRejected, "blurry receipt", admin)
	require.NoError(t, err)
	assert.Equal(t, domain.TopupRejected, decided.Status)
	assert.Equal(t, "0.00", balance(t, s, "u1"))
}

func TestDecide_OnlyOnce(t *testing.T) {
	l, s := newLifecycle(t, nil)
	ctx := context.Background()
	top := submit(t, l, "50.00")

	_, err := l.Decide(ctx, top.ID, domain.TopupApproved, "", admin)
	require.NoError(t, err)

	for _, outcome := range []domain.TopupStatus{domain.TopupApproved, domain.TopupRejected} {
		_, err := l.Decide(ctx, top.ID, outcome, "", admin)
		assert.True(t, domain.IsCode(err, domain.ErrCodeAlreadyDecided), outcome)
	}

	stored, err := l.Get(ctx, top.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.TopupApproved, stored.Status)
	assert.Equal(t, "50.00", balance(t, s, "u1"))
}

func TestDecide_ConcurrentApprovalsCreditOnce(t *testing.T) {
	l, s := newLifecycle(t, nil)
	top := submit(t, l, "75.25")

	const admins = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		decided int
	)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Decide(context.Background(), top.ID, domain.TopupApproved, "", admin)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case domain.IsCode(err, domain.ErrCodeAlreadyDecided):
				decided++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, admins-1, decided)
	assert.Equal(t, "75.25", balance(t, s, "u1"))
}

func TestDecide_Errors(t *testing.T) {
	l, _ := newLifecycle(t, nil)
	ctx := context.Background()
	top := submit(t, l, "50.00")

	_, err := l.Decide(ctx, "ghost", domain.TopupApproved, "", admin)
	assert.True(t, domain.IsCode(err, domain.ErrCodeNotFound))

	_, err = l.Decide(ctx, top.ID, domain.TopupApproved, "", student)
	assert.True(t, domain.IsCode(err, domain.ErrCodeForbidden))

	_, err = l.Decide(ctx, top.ID, domain.TopupPending, "", admin)
	assert.True(t, domain.IsCode(err, domain.ErrCodeInvalidInput))
}

func TestGetAndList(t *testing.T) {
	l, _ := newLifecycle(t, nil)
	ctx := context.Background()
	first := submit(t, l, "10.00")
	second := submit(t, l, "20.00")

	_, err := l.Get(ctx, first.ID, domain.Actor{UserID: "u2"})
	assert.True(t, domain.IsCode(err, domain.ErrCodeNotFound))

	mine, err := l.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "newest first")

	_, err = l.Decide(ctx, second.ID, domain.TopupRejected, "", admin)
	require.NoError(t, err)

	pending, err := l.ListPending(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	_, err = l.ListPending(ctx, student)
	assert.True(t, domain.IsCode(err, domain.ErrCodeForbidden))
}

// busyCredits fails every credit with SQLITE_BUSY while busy is set.
type busyCredits struct {
	*store.Store
	mu   sync.Mutex
	busy bool
}

func (b *busyCredits) CreditWallet(ctx context.Context, userID string, cents int64, reason, reference string, at time.Time) (bool, error) {
	b.mu.Lock()
	busy := b.busy
	b.mu.Unlock()
	if busy {
		return false, sqlite3.Error{Code: sqlite3.ErrBusy}
	}
	return b.Store.CreditWallet(ctx, userID, cents, reason, reference, at)
}

func TestDecide_DroppedCreditEscalatesAndReconciles(t *testing.T) {
	var wallet *busyCredits
	l, s := newLifecycle(t, func(s *store.Store) ledger.WalletStore {
		wallet = &busyCredits{Store: s, busy: true}
		return wallet
	})
	ctx := context.Background()
	top := submit(t, l, "50.00")

	_, err := l.Decide(ctx, top.ID, domain.TopupApproved, "", admin)
	require.Error(t, err)
	assert.True(t, domain.IsIntegrity(err))

	// The decision stands; only the credit is missing.
	stored, err := l.Get(ctx, top.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.TopupApproved, stored.Status)
	assert.Equal(t, "0.00", balance(t, s, "u1"))

	alerts, err := s.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, ledger.AlertTopupCredit, alerts[0].Kind)

	wallet.mu.Lock()
	wallet.busy = false
	wallet.mu.Unlock()

	credited, err := l.Reconcile(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{top.ID}, credited)
	assert.Equal(t, "50.00", balance(t, s, "u1"))

	credited, err = l.Reconcile(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, credited)
	assert.Equal(t, "50.00", balance(t, s, "u1"))
}
