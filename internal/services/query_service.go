package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/models"
	"payables-relay/internal/normalizer"
	"payables-relay/internal/repository"
)

// IDResolver lists counter-indexed entity ids. Satisfied by
// resolver.Resolver.
type IDResolver interface {
	ListIDs(ctx context.Context, ch chains.Chain, owner string, kind models.Kind, total uint64, page, pageSize int) ([]string, error)
}

// QueryService serves the read path. Finalized entities come from the
// store; anything not yet finalized is read live from its chain without
// being persisted.
type QueryService struct {
	fetcher     EntityFetcher
	resolver    IDResolver
	payables    repository.PayableRepository
	payments    repository.PaymentRepository
	withdrawals repository.WithdrawalRepository
	users       repository.UserRepository
	log         *logrus.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(
	fetcher EntityFetcher,
	resolver IDResolver,
	payables repository.PayableRepository,
	payments repository.PaymentRepository,
	withdrawals repository.WithdrawalRepository,
	users repository.UserRepository,
	log *logrus.Logger,
) *QueryService {
	return &QueryService{
		fetcher:     fetcher,
		resolver:    resolver,
		payables:    payables,
		payments:    payments,
		withdrawals: withdrawals,
		users:       users,
		log:         log,
	}
}

// GetPayable returns the payable id on chainName, store-first.
func (s *QueryService) GetPayable(ctx context.Context, chainName, id string) (*models.Payable, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	canonical := normalizer.CanonicalID(id, ch)

	stored, err := s.payables.GetByID(ctx, ch.Name, canonical)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	raw, err := s.fetcher.Fetch(ctx, ch, models.KindPayable, canonical)
	if err != nil {
		return nil, err
	}
	return normalizer.NormalizePayable(ch, canonical, raw)
}

// GetPayment returns the payer-side payment id on chainName, store-first.
func (s *QueryService) GetPayment(ctx context.Context, chainName, id string) (*models.UserPayment, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	canonical := normalizer.CanonicalID(id, ch)

	stored, err := s.payments.GetUserPayment(ctx, ch.Name, canonical)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	raw, err := s.fetcher.Fetch(ctx, ch, models.KindUserPayment, canonical)
	if err != nil {
		return nil, err
	}
	return normalizer.NormalizeUserPayment(ch, canonical, raw)
}

// GetPayablePayment returns the payable-side payment id on chainName.
// Payable payments have no finalize endpoint of their own, so a live read
// is how they reach the store: a successful fetch is persisted before it
// is returned.
func (s *QueryService) GetPayablePayment(ctx context.Context, chainName, id string) (*models.PayablePayment, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	canonical := normalizer.CanonicalID(id, ch)

	stored, err := s.payments.GetPayablePayment(ctx, ch.Name, canonical)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	raw, err := s.fetcher.Fetch(ctx, ch, models.KindPayablePayment, canonical)
	if err != nil {
		return nil, err
	}
	p, err := normalizer.NormalizePayablePayment(ch, canonical, raw)
	if err != nil {
		return nil, err
	}
	if err := s.payments.CreatePayablePayment(ctx, p); err != nil {
		s.log.WithError(err).WithField("chain", ch.Name).Warn("Failed to persist payable payment")
	}
	return p, nil
}

// GetWithdrawal returns the withdrawal id on chainName, store-first.
func (s *QueryService) GetWithdrawal(ctx context.Context, chainName, id string) (*models.Withdrawal, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	canonical := normalizer.CanonicalID(id, ch)

	stored, err := s.withdrawals.GetByID(ctx, ch.Name, canonical)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	raw, err := s.fetcher.Fetch(ctx, ch, models.KindWithdrawal, canonical)
	if err != nil {
		return nil, err
	}
	return normalizer.NormalizeWithdrawal(ch, canonical, raw)
}

// GetUser returns the wallet's activity record on chainName. The chain is
// the source of truth for the counters; the store only covers outages.
func (s *QueryService) GetUser(ctx context.Context, chainName, wallet string) (*models.User, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}

	raw, err := s.fetcher.Fetch(ctx, ch, models.KindUser, wallet)
	if err != nil {
		if cberrors.IsTransient(err) {
			if stored, serr := s.users.Get(ctx, ch.Name, wallet); serr == nil && stored != nil {
				s.log.WithField("chain", ch.Name).Warn("Serving stored user snapshot, chain read failed")
				return stored, nil
			}
		}
		return nil, err
	}
	u, err := normalizer.NormalizeUser(ch, wallet, raw)
	if err != nil {
		return nil, err
	}
	if err := s.users.Upsert(ctx, u); err != nil {
		s.log.WithError(err).Warn("Failed to persist user snapshot")
	}
	return u, nil
}

// ListPayables returns one page of the wallet's payables on chainName,
// most recent first. Ids resolve from the wallet's on-chain counter; a gap
// anywhere in the sequence fails the whole page. When the chain itself is
// unreachable the page is served from the store instead, covering only
// what finalization recorded.
func (s *QueryService) ListPayables(ctx context.Context, chainName, wallet string, page, pageSize int) ([]*models.Payable, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	u, err := s.userFor(ctx, ch, wallet)
	if err != nil {
		if cberrors.IsTransient(err) {
			return s.storedPayables(ctx, ch, wallet, page, pageSize)
		}
		return nil, err
	}
	if u == nil {
		return []*models.Payable{}, nil
	}
	ids, err := s.resolver.ListIDs(ctx, ch, u.WalletAddress, models.KindPayable, u.PayablesCount, page, pageSize)
	if err != nil {
		if cberrors.IsTransient(err) {
			return s.storedPayables(ctx, ch, wallet, page, pageSize)
		}
		return nil, err
	}
	out := make([]*models.Payable, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPayable(ctx, chainName, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListPayments returns one page of the wallet's payments on chainName,
// most recent first.
func (s *QueryService) ListPayments(ctx context.Context, chainName, wallet string, page, pageSize int) ([]*models.UserPayment, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	u, err := s.userFor(ctx, ch, wallet)
	if err != nil {
		if cberrors.IsTransient(err) {
			return s.storedPayments(ctx, ch, wallet, page, pageSize)
		}
		return nil, err
	}
	if u == nil {
		return []*models.UserPayment{}, nil
	}
	ids, err := s.resolver.ListIDs(ctx, ch, u.WalletAddress, models.KindUserPayment, u.PaymentsCount, page, pageSize)
	if err != nil {
		if cberrors.IsTransient(err) {
			return s.storedPayments(ctx, ch, wallet, page, pageSize)
		}
		return nil, err
	}
	out := make([]*models.UserPayment, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPayment(ctx, chainName, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListWithdrawals returns one page of the wallet's withdrawals on
// chainName, most recent first.
func (s *QueryService) ListWithdrawals(ctx context.Context, chainName, wallet string, page, pageSize int) ([]*models.Withdrawal, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	u, err := s.userFor(ctx, ch, wallet)
	if err != nil {
		if cberrors.IsTransient(err) {
			return s.storedWithdrawals(ctx, ch, wallet, page, pageSize)
		}
		return nil, err
	}
	if u == nil {
		return []*models.Withdrawal{}, nil
	}
	ids, err := s.resolver.ListIDs(ctx, ch, u.WalletAddress, models.KindWithdrawal, u.WithdrawalsCount, page, pageSize)
	if err != nil {
		if cberrors.IsTransient(err) {
			return s.storedWithdrawals(ctx, ch, wallet, page, pageSize)
		}
		return nil, err
	}
	out := make([]*models.Withdrawal, 0, len(ids))
	for _, id := range ids {
		w, err := s.GetWithdrawal(ctx, chainName, id)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// ListPayablePayments returns one page of the payments received by a
// payable on chainName, most recent first. The payable's own payments
// counter bounds the listing.
func (s *QueryService) ListPayablePayments(ctx context.Context, chainName, payableID string, page, pageSize int) ([]*models.PayablePayment, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	canonical := normalizer.CanonicalID(payableID, ch)
	payable, err := s.GetPayable(ctx, chainName, canonical)
	if err != nil {
		if cberrors.IsTransient(err) {
			return s.storedPayablePayments(ctx, ch, canonical, page, pageSize)
		}
		return nil, err
	}
	ids, err := s.resolver.ListIDs(ctx, ch, payable.ID, models.KindPayablePayment, payable.PaymentsCount, page, pageSize)
	if err != nil {
		if cberrors.IsTransient(err) {
			return s.storedPayablePayments(ctx, ch, canonical, page, pageSize)
		}
		return nil, err
	}
	out := make([]*models.PayablePayment, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPayablePayment(ctx, chainName, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListPayableWithdrawals returns one page of the withdrawals taken from a
// payable on chainName, most recent first. The chain exposes no id getter
// for a payable's withdrawal sequence, so this listing serves what
// finalization recorded.
func (s *QueryService) ListPayableWithdrawals(ctx context.Context, chainName, payableID string, page, pageSize int) ([]*models.Withdrawal, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	return s.withdrawals.FindByPayable(ctx, ch.Name, normalizer.CanonicalID(payableID, ch), page, pageSize)
}

// storedPayables serves a listing page from the store while the chain is
// unreachable. Only finalized payables appear; order still follows the
// on-chain counter.
func (s *QueryService) storedPayables(ctx context.Context, ch chains.Chain, wallet string, page, pageSize int) ([]*models.Payable, error) {
	s.log.WithField("chain", ch.Name).Warn("Serving stored payables, chain read failed")
	return s.payables.FindByHost(ctx, ch.Name, wallet, page, pageSize)
}

func (s *QueryService) storedPayments(ctx context.Context, ch chains.Chain, wallet string, page, pageSize int) ([]*models.UserPayment, error) {
	s.log.WithField("chain", ch.Name).Warn("Serving stored payments, chain read failed")
	return s.payments.FindByPayer(ctx, ch.Name, wallet, page, pageSize)
}

func (s *QueryService) storedWithdrawals(ctx context.Context, ch chains.Chain, wallet string, page, pageSize int) ([]*models.Withdrawal, error) {
	s.log.WithField("chain", ch.Name).Warn("Serving stored withdrawals, chain read failed")
	return s.withdrawals.FindByHost(ctx, ch.Name, wallet, page, pageSize)
}

func (s *QueryService) storedPayablePayments(ctx context.Context, ch chains.Chain, payableID string, page, pageSize int) ([]*models.PayablePayment, error) {
	s.log.WithField("chain", ch.Name).Warn("Serving stored payable payments, chain read failed")
	return s.payments.FindByPayable(ctx, ch.Name, payableID, page, pageSize)
}

// userFor loads the wallet's user record for listing. A wallet the chain
// has never seen yields (nil, nil): every listing under it is empty.
func (s *QueryService) userFor(ctx context.Context, ch chains.Chain, wallet string) (*models.User, error) {
	u, err := s.GetUser(ctx, ch.Name, wallet)
	if err != nil {
		if errors.Is(err, cberrors.ErrEntityNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}
