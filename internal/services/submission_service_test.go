package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenue-backend/internal/models"
	"revenue-backend/internal/timeutil"
)

func newTestService(ledger *fakeLedger, subs *fakeSubmissions) *SubmissionService {
	router := newTestRouter("Guntur", "Krishna")
	return NewSubmissionService(router, ledger, subs, NewInflightGuard(nil))
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func seedGuntur(ledger *fakeLedger, demandArrears, demandCurrent int64) *models.DCBEntry {
	fy := timeutil.CurrentFiscalYear()
	return ledger.seed("dcb_guntur", "AG-1001", fy, "Sri Rama Temple", demandArrears, demandCurrent)
}

func saveReq(arrear, current, reason string) *models.SaveSubmissionRequest {
	return &models.SaveSubmissionRequest{
		District:             "Guntur",
		APGazetteNo:          "AG-1001",
		InstitutionName:      "Sri Rama Temple",
		NewArrear:            arrear,
		NewCurrent:           current,
		OverCollectionReason: reason,
	}
}

func assertBalanceInvariant(t *testing.T, e *models.DCBEntry) {
	t.Helper()
	assert.True(t, e.CollectionTotal.Equal(e.CollectionArrears.Add(e.CollectionCurrent)),
		"collection_total must equal arrears+current")
	assert.True(t, e.BalanceTotal.Equal(e.DemandTotal.Sub(e.CollectionTotal)),
		"balance_total must equal demand_total-collection_total")
}

func TestSaveAppliesProvisionalDelta(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	svc := newTestService(ledger, newFakeSubmissions())

	sub, err := svc.Save(context.Background(), 7, saveReq("100", "50", ""), false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, sub.Status)
	assert.True(t, entry.CollectionArrears.Equal(dec(100)))
	assert.True(t, entry.CollectionCurrent.Equal(dec(50)))
	assert.True(t, entry.Provisional)
	assertBalanceInvariant(t, entry)
}

func TestResaveReplacesPriorDelta(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	svc := newTestService(ledger, newFakeSubmissions())
	ctx := context.Background()

	_, err := svc.Save(ctx, 7, saveReq("50", "50", ""), false)
	require.NoError(t, err)
	_, err = svc.Save(ctx, 7, saveReq("80", "80", ""), false)
	require.NoError(t, err)

	// Replace policy: 80/80, not 130/130.
	assert.True(t, entry.CollectionArrears.Equal(dec(80)), "got %s", entry.CollectionArrears)
	assert.True(t, entry.CollectionCurrent.Equal(dec(80)))
	assertBalanceInvariant(t, entry)
}

func TestResaveIdenticalAmountsIsNetZero(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	svc := newTestService(ledger, newFakeSubmissions())
	ctx := context.Background()

	_, err := svc.Save(ctx, 7, saveReq("50", "50", ""), false)
	require.NoError(t, err)
	applies := ledger.applyCalls
	_, err = svc.Save(ctx, 7, saveReq("50", "50", ""), false)
	require.NoError(t, err)

	assert.True(t, entry.CollectionArrears.Equal(dec(50)))
	// net-zero delta skips the ledger write entirely
	assert.Equal(t, applies, ledger.applyCalls)
}

func TestSendThenVerifyLiftsProvisionalFlag(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	subs := newFakeSubmissions()
	svc := newTestService(ledger, subs)
	ctx := context.Background()

	sub, err := svc.Save(ctx, 7, saveReq("100", "0", ""), true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSentToAccounts, sub.Status)
	assert.True(t, entry.Provisional)

	require.NoError(t, svc.Verify(ctx, sub.ID))
	assert.False(t, entry.Provisional)
	// verification never re-applies amounts
	assert.True(t, entry.CollectionArrears.Equal(dec(100)))

	got, err := subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, got.Status)

	// double verify is a no-op
	require.NoError(t, svc.Verify(ctx, sub.ID))
	assert.True(t, entry.CollectionArrears.Equal(dec(100)))
}

func TestRejectRollsBackExactly(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	subs := newFakeSubmissions()
	svc := newTestService(ledger, subs)
	ctx := context.Background()

	sub, err := svc.Save(ctx, 7, saveReq("100", "50", ""), true)
	require.NoError(t, err)

	require.NoError(t, svc.Reject(ctx, sub.ID))
	assert.True(t, entry.CollectionArrears.Equal(dec(0)), "arrears back to pre-save, got %s", entry.CollectionArrears)
	assert.True(t, entry.CollectionCurrent.Equal(dec(0)))
	assertBalanceInvariant(t, entry)

	// rejecting twice must not subtract twice
	require.NoError(t, svc.Reject(ctx, sub.ID))
	assert.Equal(t, 1, ledger.rollbackCalls)
	assert.True(t, entry.CollectionArrears.Equal(dec(0)))
}

func TestVerifyFromPendingIsInvalid(t *testing.T) {
	ledger := newFakeLedger()
	seedGuntur(ledger, 1000, 2000)
	svc := newTestService(ledger, newFakeSubmissions())
	ctx := context.Background()

	sub, err := svc.Save(ctx, 7, saveReq("10", "0", ""), false)
	require.NoError(t, err)

	err = svc.Verify(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = svc.Reject(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOverCollectionGate(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	entry.CollectionArrears = dec(900)
	recompute(entry)
	svc := newTestService(ledger, newFakeSubmissions())
	ctx := context.Background()

	// +150 arrear against remaining 100: rejected without justification
	_, err := svc.Save(ctx, 7, saveReq("150", "0", ""), false)
	var ocErr *OverCollectionError
	require.ErrorAs(t, err, &ocErr)
	assert.True(t, ocErr.RemainingArrear.Equal(dec(100)), "remaining arrear, got %s", ocErr.RemainingArrear)
	// nothing was written
	assert.True(t, entry.CollectionArrears.Equal(dec(900)))

	// same call with a justification passes
	_, err = svc.Save(ctx, 7, saveReq("150", "0", "court-ordered recovery of prior dues"), false)
	require.NoError(t, err)
	assert.True(t, entry.CollectionArrears.Equal(dec(1050)))

	// whitespace-only justification does not count
	entry2 := ledger.seed("dcb_guntur", "AG-2002", timeutil.CurrentFiscalYear(), "Masjid-e-Ala", 100, 100)
	entry2.CollectionArrears = dec(100)
	recompute(entry2)
	req := saveReq("1", "0", "   ")
	req.APGazetteNo = "AG-2002"
	_, err = svc.Save(ctx, 7, req, false)
	require.ErrorAs(t, err, &ocErr)
}

func TestSaveValidation(t *testing.T) {
	ledger := newFakeLedger()
	seedGuntur(ledger, 1000, 2000)
	svc := newTestService(ledger, newFakeSubmissions())
	ctx := context.Background()

	_, err := svc.Save(ctx, 7, saveReq("-5", "0", ""), false)
	assert.ErrorContains(t, err, "must not be negative")

	_, err = svc.Save(ctx, 7, saveReq("abc", "0", ""), false)
	assert.ErrorContains(t, err, "invalid arrear amount")

	req := saveReq("10", "0", "")
	req.District = "Atlantis"
	_, err = svc.Save(ctx, 7, req, false)
	assert.ErrorIs(t, err, ErrUnknownDistrict)

	req = saveReq("10", "0", "")
	req.APGazetteNo = " "
	_, err = svc.Save(ctx, 7, req, false)
	assert.ErrorContains(t, err, "ap_gazette_no is required")
}

func TestNoDowngradeAfterSend(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	svc := newTestService(ledger, newFakeSubmissions())
	ctx := context.Background()

	_, err := svc.Save(ctx, 7, saveReq("100", "0", ""), true)
	require.NoError(t, err)

	_, err = svc.Save(ctx, 7, saveReq("10", "0", ""), false)
	assert.ErrorIs(t, err, ErrSubmissionFrozen)
	// frozen save changed nothing
	assert.True(t, entry.CollectionArrears.Equal(dec(100)))
}

func TestMutationFailureDoesNotAdvanceStatus(t *testing.T) {
	ledger := newFakeLedger()
	seedGuntur(ledger, 1000, 2000)
	subs := newFakeSubmissions()
	svc := newTestService(ledger, subs)
	ctx := context.Background()

	ledger.failing["dcb_guntur"] = errors.New("shard down")
	_, err := svc.Save(ctx, 7, saveReq("100", "0", ""), true)
	require.Error(t, err)

	listed, err := subs.List(ctx, models.SubmissionFilter{InspectorID: 7})
	require.NoError(t, err)
	assert.Empty(t, listed, "no submission row after failed ledger write")
}

func TestRetryAfterRecordFailureDoesNotDoubleCount(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	subs := newFakeSubmissions()
	svc := newTestService(ledger, subs)
	ctx := context.Background()

	subs.upsertErr = errors.New("submissions table unavailable")
	_, err := svc.Save(ctx, 7, saveReq("100", "50", ""), false)
	require.Error(t, err)

	// the failed save left no trace in the shard
	assert.True(t, entry.CollectionArrears.Equal(dec(0)), "shard compensated after failed record, got %s", entry.CollectionArrears)
	assert.True(t, entry.CollectionCurrent.Equal(dec(0)))

	// retrying the identical save lands the amounts exactly once
	subs.upsertErr = nil
	_, err = svc.Save(ctx, 7, saveReq("100", "50", ""), false)
	require.NoError(t, err)
	assert.True(t, entry.CollectionArrears.Equal(dec(100)), "retry must not double-count, got %s", entry.CollectionArrears)
	assert.True(t, entry.CollectionCurrent.Equal(dec(50)))
	assertBalanceInvariant(t, entry)
}

func TestVerifyLosingRaceToVerifyIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	subs := newFakeSubmissions()
	svc := newTestService(ledger, subs)
	ctx := context.Background()

	sub, err := svc.Save(ctx, 7, saveReq("100", "0", ""), true)
	require.NoError(t, err)

	svc.Submissions = &racedSubmissions{fakeSubmissions: subs, settleTo: models.StatusVerified}
	require.NoError(t, svc.Verify(ctx, sub.ID), "second verify landing behind a concurrent one is a no-op")
	assert.True(t, entry.CollectionArrears.Equal(dec(100)))
}

func TestRejectLosingRaceToRejectIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	entry := seedGuntur(ledger, 1000, 2000)
	subs := newFakeSubmissions()
	svc := newTestService(ledger, subs)
	ctx := context.Background()

	sub, err := svc.Save(ctx, 7, saveReq("100", "0", ""), true)
	require.NoError(t, err)

	svc.Submissions = &racedSubmissions{fakeSubmissions: subs, settleTo: models.StatusRejected}
	require.NoError(t, svc.Reject(ctx, sub.ID), "second reject landing behind a concurrent one is a no-op")
	// the losing reject never subtracts
	assert.Equal(t, 0, ledger.rollbackCalls)
	assert.True(t, entry.CollectionArrears.Equal(dec(100)))
}

func TestRejectFailureRevertsStatus(t *testing.T) {
	ledger := newFakeLedger()
	seedGuntur(ledger, 1000, 2000)
	subs := newFakeSubmissions()
	svc := newTestService(ledger, subs)
	ctx := context.Background()

	sub, err := svc.Save(ctx, 7, saveReq("100", "0", ""), true)
	require.NoError(t, err)

	ledger.failing["dcb_guntur"] = errors.New("shard down")
	require.Error(t, svc.Reject(ctx, sub.ID))

	got, err := subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSentToAccounts, got.Status, "status reverted after failed rollback")

	// once the shard recovers the reject goes through
	delete(ledger.failing, "dcb_guntur")
	require.NoError(t, svc.Reject(ctx, sub.ID))
	assert.Equal(t, 1, ledger.rollbackCalls)
}

func TestInflightGuardDropsDuplicate(t *testing.T) {
	guard := NewInflightGuard(nil)

	release, ok := guard.TryAcquire(context.Background(), "AG-1001:7:2025-06-10")
	require.True(t, ok)

	_, ok = guard.TryAcquire(context.Background(), "AG-1001:7:2025-06-10")
	assert.False(t, ok, "second acquire while first in flight must be dropped")

	release()
	release2, ok := guard.TryAcquire(context.Background(), "AG-1001:7:2025-06-10")
	assert.True(t, ok, "key reusable after release")
	release2()
}
