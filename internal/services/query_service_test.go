package services

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/models"
	"payables-relay/internal/reader"
)

const payablePaymentID = "0x2200000000000000000000000000000000000000000000000000000000000001"

// fakeResolver serves a scripted id sequence or a scripted failure.
type fakeResolver struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (f *fakeResolver) ListIDs(_ context.Context, _ chains.Chain, _ string, _ models.Kind, _ uint64, page, pageSize int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return pageOf(f.ids, page, pageSize), nil
}

// fakePayments is an in-memory PaymentRepository.
type fakePayments struct {
	mu       sync.Mutex
	userRows map[string]*models.UserPayment
	payRows  map[string]*models.PayablePayment
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		userRows: make(map[string]*models.UserPayment),
		payRows:  make(map[string]*models.PayablePayment),
	}
}

func (f *fakePayments) CreateUserPayment(_ context.Context, p *models.UserPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := p.ChainName + "/" + p.ID
	if _, ok := f.userRows[key]; ok {
		return nil
	}
	cp := *p
	f.userRows[key] = &cp
	return nil
}

func (f *fakePayments) GetUserPayment(_ context.Context, chain, id string) (*models.UserPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.userRows[chain+"/"+id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakePayments) FindByPayer(_ context.Context, chain, payer string, page, pageSize int) ([]*models.UserPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.UserPayment{}
	for _, p := range f.userRows {
		if p.ChainName == chain && strings.EqualFold(p.Payer, payer) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PayerCount > out[j].PayerCount })
	return pageOf(out, page, pageSize), nil
}

func (f *fakePayments) MergeUserPaymentMetadata(_ context.Context, chain, id, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.userRows[chain+"/"+id]; ok && email != "" {
		p.Email = email
	}
	return nil
}

func (f *fakePayments) CreatePayablePayment(_ context.Context, p *models.PayablePayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := p.ChainName + "/" + p.ID
	if _, ok := f.payRows[key]; ok {
		return nil
	}
	cp := *p
	f.payRows[key] = &cp
	return nil
}

func (f *fakePayments) GetPayablePayment(_ context.Context, chain, id string) (*models.PayablePayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payRows[chain+"/"+id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakePayments) FindByPayable(_ context.Context, chain, payableID string, page, pageSize int) ([]*models.PayablePayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.PayablePayment{}
	for _, p := range f.payRows {
		if p.ChainName == chain && strings.EqualFold(p.PayableID, payableID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PayableCount > out[j].PayableCount })
	return pageOf(out, page, pageSize), nil
}

// fakeWithdrawals is an in-memory WithdrawalRepository.
type fakeWithdrawals struct {
	mu   sync.Mutex
	rows map[string]*models.Withdrawal
}

func newFakeWithdrawals() *fakeWithdrawals {
	return &fakeWithdrawals{rows: make(map[string]*models.Withdrawal)}
}

func (f *fakeWithdrawals) Create(_ context.Context, w *models.Withdrawal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := w.ChainName + "/" + w.ID
	if _, ok := f.rows[key]; ok {
		return nil
	}
	cp := *w
	f.rows[key] = &cp
	return nil
}

func (f *fakeWithdrawals) GetByID(_ context.Context, chain, id string) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.rows[chain+"/"+id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeWithdrawals) FindByHost(_ context.Context, chain, host string, page, pageSize int) ([]*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Withdrawal{}
	for _, w := range f.rows {
		if w.ChainName == chain && strings.EqualFold(w.Host, host) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HostCount > out[j].HostCount })
	return pageOf(out, page, pageSize), nil
}

func (f *fakeWithdrawals) FindByPayable(_ context.Context, chain, payableID string, page, pageSize int) ([]*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Withdrawal{}
	for _, w := range f.rows {
		if w.ChainName == chain && strings.EqualFold(w.PayableID, payableID) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PayableCount > out[j].PayableCount })
	return pageOf(out, page, pageSize), nil
}

type queryHarness struct {
	svc         *QueryService
	fetcher     *fakeFetcher
	resolver    *fakeResolver
	payables    *fakePayables
	payments    *fakePayments
	withdrawals *fakeWithdrawals
	users       *fakeUsers
}

func newQueryHarness(t *testing.T) *queryHarness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &queryHarness{
		fetcher:     newFakeFetcher(),
		resolver:    &fakeResolver{},
		payables:    newFakePayables(),
		payments:    newFakePayments(),
		withdrawals: newFakeWithdrawals(),
		users:       newFakeUsers(),
	}
	h.svc = NewQueryService(h.fetcher, h.resolver, h.payables, h.payments, h.withdrawals, h.users, log)
	return h
}

func bytes32FromHex(t *testing.T, s string) [32]byte {
	t.Helper()
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	require.NoError(t, err)
	require.Len(t, raw, 32)
	var out [32]byte
	copy(out[:], raw)
	return out
}

func evmWalletWord(addr string) [32]byte {
	var out [32]byte
	copy(out[12:], common.HexToAddress(addr).Bytes())
	return out
}

func rawPayablePayment(t *testing.T) *reader.EVMPayablePayment {
	t.Helper()
	return &reader.EVMPayablePayment{
		PayableID:    bytes32FromHex(t, payableID),
		Payer:        evmWalletWord(testWallet),
		PayerChainID: 0,
		PayableCount: big.NewInt(1),
		ChainCount:   big.NewInt(1),
		Timestamp:    big.NewInt(1700000100),
		Details:      reader.EVMTokenAndAmount{Token: common.HexToAddress(testUSDC), Amount: big.NewInt(1000000)},
	}
}

func TestGetPayablePaymentPersistsLiveFetch(t *testing.T) {
	h := newQueryHarness(t)
	h.fetcher.entries[fetchKey(models.KindPayablePayment, payablePaymentID)] = rawPayablePayment(t)

	p, err := h.svc.GetPayablePayment(context.Background(), "ethsepolia", payablePaymentID)
	require.NoError(t, err)
	assert.Equal(t, payablePaymentID, p.ID)
	assert.Equal(t, payableID, p.PayableID)
	assert.True(t, strings.EqualFold(testWallet, p.Payer))

	stored, err := h.payments.GetPayablePayment(context.Background(), "ethsepolia", payablePaymentID)
	require.NoError(t, err)
	require.NotNil(t, stored, "live fetch lands in the store")

	// The second read is served store-first, without another chain call.
	_, err = h.svc.GetPayablePayment(context.Background(), "ethsepolia", payablePaymentID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.fetcher.callCount(models.KindPayablePayment, payablePaymentID))
}

func TestListPayablesFallsBackToStoreWhenChainUnreachable(t *testing.T) {
	h := newQueryHarness(t)
	h.fetcher.errs[fetchKey(models.KindUser, testWallet)] = cberrors.Transient("read user", errors.New("rpc down"))

	require.NoError(t, h.payables.Create(context.Background(), &models.Payable{
		ID: payableID, ChainName: "ethsepolia", Host: testWallet, HostCount: 1,
	}))
	require.NoError(t, h.payables.Create(context.Background(), &models.Payable{
		ID: payablePaymentID, ChainName: "ethsepolia", Host: testWallet, HostCount: 2,
	}))

	out, err := h.svc.ListPayables(context.Background(), "ethsepolia", testWallet, 1, 25)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(2), out[0].HostCount, "store fallback keeps counter order")
	assert.Equal(t, uint64(1), out[1].HostCount)
}

func TestListPayablesFallsBackToStoreWhenResolutionFails(t *testing.T) {
	h := newQueryHarness(t)
	h.fetcher.entries[fetchKey(models.KindUser, testWallet)] = rawUser()
	h.resolver.err = cberrors.Transient("resolve id", errors.New("rpc down"))

	require.NoError(t, h.payables.Create(context.Background(), &models.Payable{
		ID: payableID, ChainName: "ethsepolia", Host: testWallet, HostCount: 1,
	}))

	out, err := h.svc.ListPayables(context.Background(), "ethsepolia", testWallet, 1, 25)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, payableID, out[0].ID)
}

func TestListPayablesGapStillFailsPage(t *testing.T) {
	h := newQueryHarness(t)
	h.fetcher.entries[fetchKey(models.KindUser, testWallet)] = rawUser()
	h.resolver.err = errors.New("listing aborted: payable #1 for " + testWallet + " not recorded")

	require.NoError(t, h.payables.Create(context.Background(), &models.Payable{
		ID: payableID, ChainName: "ethsepolia", Host: testWallet, HostCount: 1,
	}))

	_, err := h.svc.ListPayables(context.Background(), "ethsepolia", testWallet, 1, 25)
	require.Error(t, err, "a gap is not an outage; the page fails")
	assert.Contains(t, err.Error(), "listing aborted")
}

func TestListPayablesUnknownWalletIsEmpty(t *testing.T) {
	h := newQueryHarness(t)

	out, err := h.svc.ListPayables(context.Background(), "ethsepolia", testWallet, 1, 25)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestListPaymentsFallsBackToStore(t *testing.T) {
	h := newQueryHarness(t)
	h.fetcher.errs[fetchKey(models.KindUser, testWallet)] = cberrors.Transient("read user", errors.New("rpc down"))

	require.NoError(t, h.payments.CreateUserPayment(context.Background(), &models.UserPayment{
		ID: payableID, ChainName: "ethsepolia", Payer: testWallet, PayerCount: 1, PayableID: payableID,
	}))
	require.NoError(t, h.payments.CreateUserPayment(context.Background(), &models.UserPayment{
		ID: payablePaymentID, ChainName: "ethsepolia", Payer: testWallet, PayerCount: 2, PayableID: payableID,
	}))

	out, err := h.svc.ListPayments(context.Background(), "ethsepolia", testWallet, 1, 25)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(2), out[0].PayerCount)
}

func TestListWithdrawalsFallsBackToStore(t *testing.T) {
	h := newQueryHarness(t)
	h.fetcher.errs[fetchKey(models.KindUser, testWallet)] = cberrors.Transient("read user", errors.New("rpc down"))

	require.NoError(t, h.withdrawals.Create(context.Background(), &models.Withdrawal{
		ID: payableID, ChainName: "ethsepolia", Host: testWallet, HostCount: 1, PayableID: payableID,
	}))

	out, err := h.svc.ListWithdrawals(context.Background(), "ethsepolia", testWallet, 1, 25)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, payableID, out[0].ID)
}

func TestListPayablePaymentsFallsBackToStore(t *testing.T) {
	h := newQueryHarness(t)
	// The payable itself cannot be read; the store still knows its payments.
	h.fetcher.errs[fetchKey(models.KindPayable, payableID)] = cberrors.Transient("read payable", errors.New("rpc down"))

	require.NoError(t, h.payments.CreatePayablePayment(context.Background(), &models.PayablePayment{
		ID: payablePaymentID, ChainName: "ethsepolia", PayableID: payableID, Payer: testWallet, PayableCount: 1,
	}))

	out, err := h.svc.ListPayablePayments(context.Background(), "ethsepolia", payableID, 1, 25)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, payablePaymentID, out[0].ID)
}

func TestListPayableWithdrawalsServesRecorded(t *testing.T) {
	h := newQueryHarness(t)

	require.NoError(t, h.withdrawals.Create(context.Background(), &models.Withdrawal{
		ID: "0x01", ChainName: "ethsepolia", Host: testWallet, PayableID: payableID, PayableCount: 1,
	}))
	require.NoError(t, h.withdrawals.Create(context.Background(), &models.Withdrawal{
		ID: "0x02", ChainName: "ethsepolia", Host: testWallet, PayableID: payableID, PayableCount: 2,
	}))
	require.NoError(t, h.withdrawals.Create(context.Background(), &models.Withdrawal{
		ID: "0x03", ChainName: "ethsepolia", Host: testWallet, PayableID: payablePaymentID, PayableCount: 1,
	}))

	out, err := h.svc.ListPayableWithdrawals(context.Background(), "ethsepolia", payableID, 1, 25)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "0x02", out[0].ID)
	assert.Equal(t, "0x01", out[1].ID)
}
