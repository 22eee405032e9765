package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"revenue-backend/internal/metrics"
	"revenue-backend/internal/models"
	"revenue-backend/internal/shard"
	"revenue-backend/internal/timeutil"
)

var (
	// ErrSaveInFlight - a save for the same submission key is still running.
	// Callers treat this as "already being handled", not a failure.
	ErrSaveInFlight = errors.New("a save for this submission is already in flight")

	// ErrSubmissionFrozen - the submission left pending and can no longer be
	// edited by its inspector.
	ErrSubmissionFrozen = errors.New("submission has already been sent to accounts")

	// ErrInvalidTransition - verify/reject attempted from a state that does
	// not allow it.
	ErrInvalidTransition = errors.New("submission is not awaiting verification")

	// ErrUnknownDistrict - the district is not in the roster, so there is no
	// shard to write to.
	ErrUnknownDistrict = errors.New("district not found in roster")
)

// SubmissionService owns the provisional ledger lifecycle:
//
//	pending -> sent_to_accounts -> {verified, rejected}
//
// Save and send apply a signed net delta to the shard row (replace policy: a
// re-save on the same day nets out the previously recorded amounts first, so
// repeated saves never double-count). Verify lifts the provisional flag
// without touching amounts. Reject reverses the recorded amounts exactly
// once, guarded by the status transition.
type SubmissionService struct {
	Router      *shard.Router
	Ledger      LedgerStore
	Submissions SubmissionStore
	Guard       *OverCollectionGuard
	Inflight    *InflightGuard
}

func NewSubmissionService(router *shard.Router, ledger LedgerStore, submissions SubmissionStore, inflight *InflightGuard) *SubmissionService {
	return &SubmissionService{
		Router:      router,
		Ledger:      ledger,
		Submissions: submissions,
		Guard:       NewOverCollectionGuard(ledger),
		Inflight:    inflight,
	}
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s amount %q", field, value)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s amount must not be negative", field)
	}
	return d, nil
}

// Save records or replaces today's submission for the inspector and applies
// the provisional delta to the shard row. send=true forwards it to accounts
// in the same step; either way the shard write happens first, so a failed
// store call leaves the submission status unadvanced.
func (s *SubmissionService) Save(ctx context.Context, inspectorID int, req *models.SaveSubmissionRequest, send bool) (*models.CollectionSubmission, error) {
	newArrear, err := parseAmount("arrear", req.NewArrear)
	if err != nil {
		return nil, err
	}
	newCurrent, err := parseAmount("current", req.NewCurrent)
	if err != nil {
		return nil, err
	}
	gazetteNo := strings.TrimSpace(req.APGazetteNo)
	if gazetteNo == "" {
		return nil, errors.New("ap_gazette_no is required")
	}
	if strings.TrimSpace(req.District) == "" {
		return nil, errors.New("district is required")
	}

	entry, ok, err := s.Router.Resolve(ctx, req.District)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDistrict, req.District)
	}

	day := timeutil.StartOfDay(timeutil.Now())
	fiscalYear := timeutil.FiscalYear(day)

	key := fmt.Sprintf("%s:%d:%s", gazetteNo, inspectorID, day.Format(timeutil.DateLayout))
	release, acquired := s.Inflight.TryAcquire(ctx, key)
	if !acquired {
		return nil, ErrSaveInFlight
	}
	defer release()

	existing, err := s.Submissions.GetByDedupKey(ctx, gazetteNo, inspectorID, day)
	if err != nil {
		return nil, fmt.Errorf("submission lookup failed: %w", err)
	}

	priorArrear, priorCurrent := decimal.Zero, decimal.Zero
	if existing != nil {
		if existing.Status != models.StatusPending {
			return nil, ErrSubmissionFrozen
		}
		priorArrear, priorCurrent = existing.NewArrear, existing.NewCurrent
	}

	// Replace policy: the shard receives the net change against what this
	// submission already contributed.
	deltaArrear := newArrear.Sub(priorArrear)
	deltaCurrent := newCurrent.Sub(priorCurrent)

	// Advisory check, re-run on every amount change right before the write.
	if err := s.Guard.Check(ctx, entry.ShardID, gazetteNo, fiscalYear, deltaArrear, deltaCurrent, req.OverCollectionReason); err != nil {
		return nil, err
	}

	if !deltaArrear.IsZero() || !deltaCurrent.IsZero() {
		if err := s.Ledger.ApplyProvisional(ctx, entry.ShardID, gazetteNo, fiscalYear, deltaArrear, deltaCurrent, req.Remarks); err != nil {
			return nil, fmt.Errorf("provisional update failed, submission not saved: %w", err)
		}
	}

	status := models.StatusPending
	action := "save"
	if send {
		status = models.StatusSentToAccounts
		action = "send"
	}

	sub := &models.CollectionSubmission{
		DistrictID:           entry.DistrictID,
		District:             entry.District,
		APGazetteNo:          gazetteNo,
		InstitutionName:      strings.TrimSpace(req.InstitutionName),
		InspectorID:          inspectorID,
		SubmissionDate:       day,
		FiscalYear:           fiscalYear,
		NewArrear:            newArrear,
		NewCurrent:           newCurrent,
		Status:               status,
		OverCollectionReason: strings.TrimSpace(req.OverCollectionReason),
		Remarks:              strings.TrimSpace(req.Remarks),
	}
	if err := s.Submissions.Upsert(ctx, sub); err != nil {
		// The submission row did not take the delta, so put the shard back to
		// its pre-save totals. A retry of this save must apply the delta once,
		// not on top of an orphaned one.
		if !deltaArrear.IsZero() || !deltaCurrent.IsZero() {
			if compErr := s.Ledger.RollbackRejection(ctx, entry.ShardID, gazetteNo, fiscalYear, deltaArrear, deltaCurrent); compErr != nil {
				log.Printf("[Submission] save %s/%s failed and shard compensation failed too: %v (original: %v)", entry.ShardID, gazetteNo, compErr, err)
			}
		}
		return nil, fmt.Errorf("submission record failed, save not applied: %w", err)
	}

	metrics.SubmissionTransitions.WithLabelValues(action).Inc()
	return sub, nil
}

// Verify marks a submission verified and lifts the shard row's provisional
// flag. No numeric change. Verifying a submission that is already verified
// is a no-op.
func (s *SubmissionService) Verify(ctx context.Context, id int) error {
	sub, err := s.Submissions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("submission %d not found: %w", id, err)
	}

	// The guarded transition is the exactly-once gate.
	ok, err := s.Submissions.TransitionStatus(ctx, id, models.StatusSentToAccounts, models.StatusVerified)
	if err != nil {
		return err
	}
	if !ok {
		// The first read can be stale when two verifies race: decide the
		// no-op on the status as it stands after the transition lost.
		cur, curErr := s.Submissions.GetByID(ctx, id)
		if curErr != nil {
			return fmt.Errorf("submission %d not found: %w", id, curErr)
		}
		if cur.Status == models.StatusVerified {
			return nil
		}
		return ErrInvalidTransition
	}

	entry, found, err := s.Router.Resolve(ctx, sub.District)
	if err == nil && !found {
		err = fmt.Errorf("%w: %s", ErrUnknownDistrict, sub.District)
	}
	if err == nil {
		err = s.Ledger.FinalizeVerification(ctx, entry.ShardID, sub.APGazetteNo, sub.FiscalYear)
	}
	if err != nil {
		if _, revertErr := s.Submissions.TransitionStatus(ctx, id, models.StatusVerified, models.StatusSentToAccounts); revertErr != nil {
			log.Printf("[Submission] verify %d failed and status revert failed too: %v (original: %v)", id, revertErr, err)
		}
		return fmt.Errorf("verification failed, submission not verified: %w", err)
	}

	metrics.SubmissionTransitions.WithLabelValues("verify").Inc()
	return nil
}

// Reject marks a submission rejected and subtracts its recorded amounts back
// out of the shard row. The status transition guards the subtraction:
// rejecting an already-rejected submission is a no-op, never a second
// subtraction.
func (s *SubmissionService) Reject(ctx context.Context, id int) error {
	sub, err := s.Submissions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("submission %d not found: %w", id, err)
	}

	ok, err := s.Submissions.TransitionStatus(ctx, id, models.StatusSentToAccounts, models.StatusRejected)
	if err != nil {
		return err
	}
	if !ok {
		cur, curErr := s.Submissions.GetByID(ctx, id)
		if curErr != nil {
			return fmt.Errorf("submission %d not found: %w", id, curErr)
		}
		if cur.Status == models.StatusRejected {
			return nil
		}
		return ErrInvalidTransition
	}

	entry, found, err := s.Router.Resolve(ctx, sub.District)
	if err == nil && !found {
		err = fmt.Errorf("%w: %s", ErrUnknownDistrict, sub.District)
	}
	if err == nil {
		err = s.Ledger.RollbackRejection(ctx, entry.ShardID, sub.APGazetteNo, sub.FiscalYear, sub.NewArrear, sub.NewCurrent)
	}
	if err != nil {
		if _, revertErr := s.Submissions.TransitionStatus(ctx, id, models.StatusRejected, models.StatusSentToAccounts); revertErr != nil {
			log.Printf("[Submission] reject %d failed and status revert failed too: %v (original: %v)", id, revertErr, err)
		}
		return fmt.Errorf("rejection failed, submission not rejected: %w", err)
	}

	metrics.SubmissionTransitions.WithLabelValues("reject").Inc()
	return nil
}

// Get returns one submission.
func (s *SubmissionService) Get(ctx context.Context, id int) (*models.CollectionSubmission, error) {
	return s.Submissions.GetByID(ctx, id)
}

// List returns submissions matching the filter.
func (s *SubmissionService) List(ctx context.Context, f models.SubmissionFilter) ([]*models.CollectionSubmission, error) {
	return s.Submissions.List(ctx, f)
}
