package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"revenue-backend/internal/models"
	"revenue-backend/internal/shard"
)

// stubRoster feeds the shard router a fixed district list.
type stubRoster struct {
	districts []models.District
	err       error
}

func (s *stubRoster) ListDistricts(ctx context.Context) ([]models.District, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.districts, nil
}

func newTestRouter(names ...string) *shard.Router {
	src := &stubRoster{}
	for i, n := range names {
		src.districts = append(src.districts, models.District{ID: i + 1, Name: n})
	}
	return shard.NewRouter(src)
}

func shardRouterWithError() *shard.Router {
	return shard.NewRouter(&stubRoster{err: errors.New("roster down")})
}

// fakeLedger mirrors the server-side ledger functions: signed delta updates
// on stored values, generated balance columns, provisional flag.
type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*models.DCBEntry
	failing map[string]error // shardID -> injected error

	applyCalls    int
	rollbackCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		entries: make(map[string]*models.DCBEntry),
		failing: make(map[string]error),
	}
}

func ledgerKey(shardID, gazetteNo, fy string) string {
	return shardID + "|" + gazetteNo + "|" + fy
}

func (f *fakeLedger) seed(shardID, gazetteNo, fy, name string, demandArrears, demandCurrent int64) *models.DCBEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &models.DCBEntry{
		APGazetteNo:     gazetteNo,
		InstitutionName: name,
		FiscalYear:      fy,
		DemandArrears:   decimal.NewFromInt(demandArrears),
		DemandCurrent:   decimal.NewFromInt(demandCurrent),
		UpdatedAt:       time.Now(),
	}
	recompute(e)
	f.entries[ledgerKey(shardID, gazetteNo, fy)] = e
	return e
}

func recompute(e *models.DCBEntry) {
	e.DemandTotal = e.DemandArrears.Add(e.DemandCurrent)
	e.CollectionTotal = e.CollectionArrears.Add(e.CollectionCurrent)
	e.BalanceArrears = e.DemandArrears.Sub(e.CollectionArrears)
	e.BalanceCurrent = e.DemandCurrent.Sub(e.CollectionCurrent)
	e.BalanceTotal = e.DemandTotal.Sub(e.CollectionTotal)
}

func (f *fakeLedger) get(shardID, gazetteNo, fy string) *models.DCBEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[ledgerKey(shardID, gazetteNo, fy)]
}

func (f *fakeLedger) CheckOverCollection(ctx context.Context, shardID, gazetteNo, fy string, newArrear, newCurrent decimal.Decimal) (*models.OverCollectionCheck, error) {
	if err := f.failing[shardID]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ledgerKey(shardID, gazetteNo, fy)]
	if !ok {
		return nil, fmt.Errorf("no ledger row for %s in %s", gazetteNo, shardID)
	}
	remainingArrear := e.DemandArrears.Sub(e.CollectionArrears)
	remainingCurrent := e.DemandCurrent.Sub(e.CollectionCurrent)
	requires := e.CollectionArrears.Add(newArrear).GreaterThan(e.DemandArrears) ||
		e.CollectionCurrent.Add(newCurrent).GreaterThan(e.DemandCurrent)
	return &models.OverCollectionCheck{
		RequiresReason:   requires,
		RemainingArrear:  remainingArrear,
		RemainingCurrent: remainingCurrent,
	}, nil
}

func (f *fakeLedger) ApplyProvisional(ctx context.Context, shardID, gazetteNo, fy string, deltaArrear, deltaCurrent decimal.Decimal, remarks string) error {
	if err := f.failing[shardID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ledgerKey(shardID, gazetteNo, fy)]
	if !ok {
		return fmt.Errorf("no ledger row for %s in %s", gazetteNo, shardID)
	}
	f.applyCalls++
	e.CollectionArrears = e.CollectionArrears.Add(deltaArrear)
	e.CollectionCurrent = e.CollectionCurrent.Add(deltaCurrent)
	e.Provisional = true
	if remarks != "" {
		e.Remarks = remarks
	}
	e.UpdatedAt = time.Now()
	recompute(e)
	return nil
}

func (f *fakeLedger) FinalizeVerification(ctx context.Context, shardID, gazetteNo, fy string) error {
	if err := f.failing[shardID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ledgerKey(shardID, gazetteNo, fy)]
	if !ok {
		return fmt.Errorf("no ledger row for %s in %s", gazetteNo, shardID)
	}
	e.Provisional = false
	e.UpdatedAt = time.Now()
	return nil
}

func (f *fakeLedger) RollbackRejection(ctx context.Context, shardID, gazetteNo, fy string, deltaArrear, deltaCurrent decimal.Decimal) error {
	if err := f.failing[shardID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ledgerKey(shardID, gazetteNo, fy)]
	if !ok {
		return fmt.Errorf("no ledger row for %s in %s", gazetteNo, shardID)
	}
	f.rollbackCalls++
	e.CollectionArrears = e.CollectionArrears.Sub(deltaArrear)
	e.CollectionCurrent = e.CollectionCurrent.Sub(deltaCurrent)
	e.UpdatedAt = time.Now()
	recompute(e)
	return nil
}

func (f *fakeLedger) QueryShard(ctx context.Context, shardID string, q models.ShardQuery) ([]models.DCBEntry, error) {
	if err := f.failing[shardID]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []models.DCBEntry
	for key, e := range f.entries {
		if len(rows) >= q.Limit {
			break
		}
		if !strings.HasPrefix(key, shardID+"|") {
			continue
		}
		if q.FiscalYear != "" && e.FiscalYear != q.FiscalYear {
			continue
		}
		if q.VerifiedOnly && e.Provisional {
			continue
		}
		rows = append(rows, *e)
	}
	return rows, nil
}

// fakeSubmissions is an in-memory SubmissionStore.
type fakeSubmissions struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*models.CollectionSubmission

	upsertErr error
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{nextID: 1, byID: make(map[int]*models.CollectionSubmission)}
}

func (f *fakeSubmissions) GetByID(ctx context.Context, id int) (*models.CollectionSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("submission %d not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) GetByDedupKey(ctx context.Context, gazetteNo string, inspectorID int, day time.Time) (*models.CollectionSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.APGazetteNo == gazetteNo && s.InspectorID == inspectorID && s.SubmissionDate.Equal(day) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSubmissions) Upsert(ctx context.Context, s *models.CollectionSubmission) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.byID {
		if existing.APGazetteNo == s.APGazetteNo && existing.InspectorID == s.InspectorID && existing.SubmissionDate.Equal(s.SubmissionDate) {
			s.ID = id
			cp := *s
			f.byID[id] = &cp
			return nil
		}
	}
	s.ID = f.nextID
	f.nextID++
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

// racedSubmissions serves one stale read of a submission and lets a competing
// settle land right behind it, mimicking two accounts users acting on the
// same submission at once.
type racedSubmissions struct {
	*fakeSubmissions
	settleTo models.SubmissionStatus
	settled  bool
}

func (r *racedSubmissions) GetByID(ctx context.Context, id int) (*models.CollectionSubmission, error) {
	sub, err := r.fakeSubmissions.GetByID(ctx, id)
	if err != nil || r.settled {
		return sub, err
	}
	r.settled = true
	if _, err := r.fakeSubmissions.TransitionStatus(ctx, id, models.StatusSentToAccounts, r.settleTo); err != nil {
		return nil, err
	}
	return sub, nil
}

func (f *fakeSubmissions) TransitionStatus(ctx context.Context, id int, from, to models.SubmissionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (f *fakeSubmissions) List(ctx context.Context, filter models.SubmissionFilter) ([]*models.CollectionSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CollectionSubmission
	for _, s := range f.byID {
		if filter.InspectorID != 0 && s.InspectorID != filter.InspectorID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}
