package services

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payables-relay/internal/cache"
	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/models"
	"payables-relay/internal/reader"
)

const (
	testWallet = "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	testUSDC   = "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238"
	payableID  = "0x1100000000000000000000000000000000000000000000000000000000000001"
)

// fakeFetcher serves scripted raw payloads and counts calls.
type fakeFetcher struct {
	mu      sync.Mutex
	entries map[string]interface{}
	errs    map[string]error
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		entries: make(map[string]interface{}),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func fetchKey(kind models.Kind, id string) string {
	return fmt.Sprintf("%s/%s", kind, id)
}

func (f *fakeFetcher) Fetch(_ context.Context, _ chains.Chain, kind models.Kind, id string) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fetchKey(kind, id)
	f.calls[key]++
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if v, ok := f.entries[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", cberrors.ErrEntityNotFound, id)
}

func (f *fakeFetcher) callCount(kind models.Kind, id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fetchKey(kind, id)]
}

// fakeFinals is an in-memory FinalizationRepository.
type fakeFinals struct {
	mu   sync.Mutex
	rows map[string]*models.FinalizationRecord
}

func newFakeFinals() *fakeFinals {
	return &fakeFinals{rows: make(map[string]*models.FinalizationRecord)}
}

func finalKey(chain string, kind models.Kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", chain, kind, id)
}

func (f *fakeFinals) Claim(_ context.Context, chain string, kind models.Kind, id string) (bool, *models.FinalizationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := finalKey(chain, kind, id)
	if existing, ok := f.rows[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	f.rows[key] = &models.FinalizationRecord{
		ChainName: chain, Kind: kind, EntityID: id, Status: models.StatusRecording,
		UpdatedAt: time.Now(),
	}
	return true, nil, nil
}

// backdate ages a row's UpdatedAt, as if its claimant went quiet.
func (f *fakeFinals) backdate(chain string, kind models.Kind, id string, by time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.rows[finalKey(chain, kind, id)]; ok {
		rec.UpdatedAt = time.Now().Add(-by)
	}
}

func (f *fakeFinals) Get(_ context.Context, chain string, kind models.Kind, id string) (*models.FinalizationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.rows[finalKey(chain, kind, id)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeFinals) MarkFinalized(_ context.Context, chain string, kind models.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.rows[finalKey(chain, kind, id)]; ok {
		rec.Status = models.StatusFinalized
		rec.LastError = ""
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeFinals) MarkFailed(_ context.Context, chain string, kind models.Kind, id string, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.rows[finalKey(chain, kind, id)]; ok {
		rec.Status = models.StatusFailedRecording
		rec.LastError = cause
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeFinals) ClaimNotification(_ context.Context, chain string, kind models.Kind, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[finalKey(chain, kind, id)]
	if !ok || rec.NotifiedAt != nil {
		return false, nil
	}
	now := time.Now()
	rec.NotifiedAt = &now
	return true, nil
}

// fakePayables is an in-memory PayableRepository.
type fakePayables struct {
	mu   sync.Mutex
	rows map[string]*models.Payable
}

func newFakePayables() *fakePayables {
	return &fakePayables{rows: make(map[string]*models.Payable)}
}

func (f *fakePayables) Create(_ context.Context, p *models.Payable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := p.ChainName + "/" + p.ID
	if _, ok := f.rows[key]; ok {
		return nil
	}
	cp := *p
	f.rows[key] = &cp
	return nil
}

func (f *fakePayables) GetByID(_ context.Context, chain, id string) (*models.Payable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.rows[chain+"/"+id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakePayables) FindByHost(_ context.Context, chain, host string, page, pageSize int) ([]*models.Payable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Payable{}
	for _, p := range f.rows {
		if p.ChainName == chain && strings.EqualFold(p.Host, host) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HostCount > out[j].HostCount })
	return pageOf(out, page, pageSize), nil
}

// pageOf applies offset/limit pagination the way the gorm repositories do.
func pageOf[T any](rows []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []T{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func (f *fakePayables) MergeMetadata(_ context.Context, chain, id, description, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.rows[chain+"/"+id]; ok {
		if description != "" {
			p.Description = description
		}
		if email != "" {
			p.Email = email
		}
	}
	return nil
}

// fakeUsers is an in-memory UserRepository.
type fakeUsers struct {
	mu   sync.Mutex
	rows map[string]*models.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{rows: make(map[string]*models.User)} }

func (f *fakeUsers) Upsert(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.rows[u.ChainName+"/"+u.WalletAddress] = &cp
	return nil
}

func (f *fakeUsers) Get(_ context.Context, chain, wallet string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.rows[chain+"/"+wallet]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// countingNotifier records published events.
type countingNotifier struct {
	mu     sync.Mutex
	events []FinalizedEvent
}

func (n *countingNotifier) PublishFinalized(e FinalizedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func rawPayable() *reader.EVMPayable {
	return &reader.EVMPayable{
		Host:             common.HexToAddress(testWallet),
		HostCount:        big.NewInt(1),
		ChainCount:       big.NewInt(1),
		PaymentsCount:    big.NewInt(0),
		WithdrawalsCount: big.NewInt(0),
		CreatedAt:        big.NewInt(1700000000),
		AllowedTokensAndAmounts: []reader.EVMTokenAndAmount{
			{Token: common.HexToAddress(testUSDC), Amount: big.NewInt(1000000)},
		},
		Balances: []reader.EVMTokenAndAmount{},
	}
}

func rawUser() *reader.EVMUser {
	return &reader.EVMUser{
		ChainCount:       big.NewInt(1),
		PayablesCount:    big.NewInt(1),
		PaymentsCount:    big.NewInt(0),
		WithdrawalsCount: big.NewInt(0),
		CreatedAt:        big.NewInt(1690000000),
	}
}

type finalizeHarness struct {
	svc      *FinalizeService
	fetcher  *fakeFetcher
	finals   *fakeFinals
	payables *fakePayables
	users    *fakeUsers
	notifier *countingNotifier
}

func newFinalizeHarness(t *testing.T) *finalizeHarness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &finalizeHarness{
		fetcher:  newFakeFetcher(),
		finals:   newFakeFinals(),
		payables: newFakePayables(),
		users:    newFakeUsers(),
		notifier: &countingNotifier{},
	}
	h.svc = NewFinalizeService(h.fetcher, cache.New(16), h.finals, h.payables, nil, nil, h.users, h.notifier, log)
	return h
}

func TestFinalizePayable(t *testing.T) {
	h := newFinalizeHarness(t)
	h.fetcher.entries[fetchKey(models.KindPayable, payableID)] = rawPayable()
	h.fetcher.entries[fetchKey(models.KindUser, testWallet)] = rawUser()

	res, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "test invoice", "host@example.com")
	require.NoError(t, err)
	require.False(t, res.AlreadyFinalized)

	p, ok := res.Entity.(*models.Payable)
	require.True(t, ok)
	assert.Equal(t, payableID, p.ID)
	assert.Equal(t, "test invoice", p.Description)

	stored, err := h.payables.GetByID(context.Background(), "ethsepolia", payableID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "host@example.com", stored.Email)

	rec, err := h.finals.Get(context.Background(), "ethsepolia", models.KindPayable, payableID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusFinalized, rec.Status)

	assert.Equal(t, 1, h.notifier.count())

	u, err := h.users.Get(context.Background(), "ethsepolia", testWallet)
	require.NoError(t, err)
	require.NotNil(t, u, "user snapshot refreshes after finalization")
	assert.Equal(t, uint64(1), u.PayablesCount)
}

func TestFinalizePayableIsIdempotent(t *testing.T) {
	h := newFinalizeHarness(t)
	h.fetcher.entries[fetchKey(models.KindPayable, payableID)] = rawPayable()
	h.fetcher.entries[fetchKey(models.KindUser, testWallet)] = rawUser()

	_, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "first", "")
	require.NoError(t, err)

	res, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "", "")
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinalized)

	p, ok := res.Entity.(*models.Payable)
	require.True(t, ok)
	assert.Equal(t, "first", p.Description, "replay returns the stored record")

	assert.Equal(t, 1, h.notifier.count(), "notification fires exactly once")
	assert.Equal(t, 1, h.fetcher.callCount(models.KindPayable, payableID), "replay does not refetch")
}

func TestFinalizePayableCaseVariantsShareOneRecord(t *testing.T) {
	h := newFinalizeHarness(t)
	h.fetcher.entries[fetchKey(models.KindPayable, payableID)] = rawPayable()
	h.fetcher.entries[fetchKey(models.KindUser, testWallet)] = rawUser()

	_, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "", "")
	require.NoError(t, err)

	res, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", strings.ToUpper(payableID), testWallet, "", "")
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinalized)
	assert.Equal(t, 1, h.notifier.count())
}

func TestFinalizeNotFoundMarksFailed(t *testing.T) {
	h := newFinalizeHarness(t)

	_, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, cberrors.ErrEntityNotFound)

	rec, err := h.finals.Get(context.Background(), "ethsepolia", models.KindPayable, payableID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusFailedRecording, rec.Status)
	assert.NotEmpty(t, rec.LastError)
	assert.Equal(t, 0, h.notifier.count())
}

func TestFinalizeRetriesAfterFailure(t *testing.T) {
	h := newFinalizeHarness(t)

	_, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "", "")
	require.Error(t, err)

	// The entity appears on chain; a retry must succeed in place.
	h.fetcher.entries[fetchKey(models.KindPayable, payableID)] = rawPayable()
	h.fetcher.entries[fetchKey(models.KindUser, testWallet)] = rawUser()

	res, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "", "")
	require.NoError(t, err)
	assert.False(t, res.AlreadyFinalized)
	assert.Equal(t, 1, h.notifier.count())
}

func TestFinalizeRejectsForeignWallet(t *testing.T) {
	h := newFinalizeHarness(t)
	h.fetcher.entries[fetchKey(models.KindPayable, payableID)] = rawPayable()

	other := "0x00000000000000000000000000000000000000aa"
	_, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, other, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, cberrors.ErrUnauthorizedHost)

	rec, err := h.finals.Get(context.Background(), "ethsepolia", models.KindPayable, payableID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusFailedRecording, rec.Status)
}

func TestFinalizeInFlightIsConflict(t *testing.T) {
	h := newFinalizeHarness(t)
	h.fetcher.entries[fetchKey(models.KindPayable, payableID)] = rawPayable()

	// Simulate a concurrent claim that has not resolved yet.
	_, _, err := h.finals.Claim(context.Background(), "ethsepolia", models.KindPayable, payableID)
	require.NoError(t, err)

	_, err = h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, cberrors.ErrDuplicateFinalization)
}

func TestFinalizeRetriesStaleRecordingClaim(t *testing.T) {
	h := newFinalizeHarness(t)
	h.fetcher.entries[fetchKey(models.KindPayable, payableID)] = rawPayable()
	h.fetcher.entries[fetchKey(models.KindUser, testWallet)] = rawUser()

	// A request claimed the id and died before marking the row either way.
	_, _, err := h.finals.Claim(context.Background(), "ethsepolia", models.KindPayable, payableID)
	require.NoError(t, err)

	// While the claim is fresh the id stays locked.
	_, err = h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, cberrors.ErrDuplicateFinalization)

	// Once it goes stale the next request finalizes in place.
	h.finals.backdate("ethsepolia", models.KindPayable, payableID, recordingStaleAfter+time.Second)

	res, err := h.svc.FinalizePayable(context.Background(), "ethsepolia", payableID, testWallet, "", "")
	require.NoError(t, err)
	assert.False(t, res.AlreadyFinalized)

	rec, err := h.finals.Get(context.Background(), "ethsepolia", models.KindPayable, payableID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusFinalized, rec.Status)
	assert.Equal(t, 1, h.notifier.count())
}

func TestFinalizeUnknownChain(t *testing.T) {
	h := newFinalizeHarness(t)
	_, err := h.svc.FinalizePayable(context.Background(), "dogechain", payableID, testWallet, "", "")
	assert.ErrorIs(t, err, cberrors.ErrUnknownChain)
}
