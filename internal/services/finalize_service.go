package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"payables-relay/internal/addrcodec"
	"payables-relay/internal/cache"
	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/metrics"
	"payables-relay/internal/models"
	"payables-relay/internal/normalizer"
	"payables-relay/internal/repository"
)

// recordingStaleAfter bounds how long a Recording claim stays exclusive. A
// claimant that dies between Claim and MarkFinalized/MarkFailed would
// otherwise strand the row in Recording and block the id forever; past this
// window the claim is retryable in place. The OnConflict persists and the
// notification claim keep the outcome exactly-once even if the original
// claimant turns out to still be running.
const recordingStaleAfter = 2 * time.Minute

// EntityFetcher fetches raw on-chain payloads. Satisfied by reader.Reader.
type EntityFetcher interface {
	Fetch(ctx context.Context, ch chains.Chain, kind models.Kind, id string) (interface{}, error)
}

// FinalizeService is the exactly-once gate between a chain write and the
// canonical store. For each (chain, kind, id) it claims the finalization
// record, fetches and normalizes the on-chain state, persists it, and fires
// the one-time host notification. Re-finalizing a finalized entity is an
// idempotent success; concurrent requests race on the claim and exactly one
// wins.
type FinalizeService struct {
	fetcher     EntityFetcher
	cache       *cache.Cache
	finals      repository.FinalizationRepository
	payables    repository.PayableRepository
	payments    repository.PaymentRepository
	withdrawals repository.WithdrawalRepository
	users       repository.UserRepository
	notifier    Notifier
	log         *logrus.Logger
}

// NewFinalizeService creates a FinalizeService.
func NewFinalizeService(
	fetcher EntityFetcher,
	c *cache.Cache,
	finals repository.FinalizationRepository,
	payables repository.PayableRepository,
	payments repository.PaymentRepository,
	withdrawals repository.WithdrawalRepository,
	users repository.UserRepository,
	notifier Notifier,
	log *logrus.Logger,
) *FinalizeService {
	return &FinalizeService{
		fetcher:     fetcher,
		cache:       c,
		finals:      finals,
		payables:    payables,
		payments:    payments,
		withdrawals: withdrawals,
		users:       users,
		notifier:    notifier,
		log:         log,
	}
}

// FinalizeResult reports one finalization outcome.
type FinalizeResult struct {
	// Entity is the canonical record; concretely *models.Payable,
	// *models.UserPayment or *models.Withdrawal depending on the call.
	Entity interface{}
	// AlreadyFinalized is true when a previous request finalized the
	// entity and this call returned the stored record.
	AlreadyFinalized bool
}

// FinalizePayable finalizes the payable id on chainName on behalf of wallet.
// Off-chain description and email merge into the stored record.
func (s *FinalizeService) FinalizePayable(ctx context.Context, chainName, id, wallet, description, email string) (*FinalizeResult, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	canonical := normalizer.CanonicalID(id, ch)

	res, err := s.finalize(ctx, ch, models.KindPayable, canonical, wallet, func(raw interface{}) (owner string, entity interface{}, persist func(context.Context) error, err2 error) {
		p, err2 := normalizer.NormalizePayable(ch, canonical, raw)
		if err2 != nil {
			return "", nil, nil, err2
		}
		p.Description = description
		p.Email = email
		return p.Host, p, func(pctx context.Context) error {
			if err3 := s.payables.Create(pctx, p); err3 != nil {
				return err3
			}
			return s.payables.MergeMetadata(pctx, ch.Name, canonical, description, email)
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyFinalized {
		if err := s.payables.MergeMetadata(ctx, ch.Name, canonical, description, email); err != nil {
			return nil, err
		}
		stored, err := s.payables.GetByID(ctx, ch.Name, canonical)
		if err != nil {
			return nil, err
		}
		res.Entity = stored
	}
	return res, nil
}

// FinalizePayment finalizes the payer-side payment id on chainName.
func (s *FinalizeService) FinalizePayment(ctx context.Context, chainName, id, wallet, email string) (*FinalizeResult, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	canonical := normalizer.CanonicalID(id, ch)

	res, err := s.finalize(ctx, ch, models.KindUserPayment, canonical, wallet, func(raw interface{}) (string, interface{}, func(context.Context) error, error) {
		p, err2 := normalizer.NormalizeUserPayment(ch, canonical, raw)
		if err2 != nil {
			return "", nil, nil, err2
		}
		p.Email = email
		return p.Payer, p, func(pctx context.Context) error {
			if err3 := s.payments.CreateUserPayment(pctx, p); err3 != nil {
				return err3
			}
			return s.payments.MergeUserPaymentMetadata(pctx, ch.Name, canonical, email)
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyFinalized {
		if err := s.payments.MergeUserPaymentMetadata(ctx, ch.Name, canonical, email); err != nil {
			return nil, err
		}
		stored, err := s.payments.GetUserPayment(ctx, ch.Name, canonical)
		if err != nil {
			return nil, err
		}
		res.Entity = stored
	}
	return res, nil
}

// FinalizeWithdrawal finalizes the withdrawal id on chainName.
func (s *FinalizeService) FinalizeWithdrawal(ctx context.Context, chainName, id, wallet string) (*FinalizeResult, error) {
	ch, err := chains.ByName(chainName)
	if err != nil {
		return nil, err
	}
	canonical := normalizer.CanonicalID(id, ch)

	res, err := s.finalize(ctx, ch, models.KindWithdrawal, canonical, wallet, func(raw interface{}) (string, interface{}, func(context.Context) error, error) {
		w, err2 := normalizer.NormalizeWithdrawal(ch, canonical, raw)
		if err2 != nil {
			return "", nil, nil, err2
		}
		return w.Host, w, func(pctx context.Context) error {
			return s.withdrawals.Create(pctx, w)
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyFinalized {
		stored, err := s.withdrawals.GetByID(ctx, ch.Name, canonical)
		if err != nil {
			return nil, err
		}
		res.Entity = stored
	}
	return res, nil
}

// finalize runs the shared claim/fetch/normalize/persist/notify sequence.
// normalize returns the entity's owner wallet, the canonical record and a
// persistence closure.
func (s *FinalizeService) finalize(
	ctx context.Context,
	ch chains.Chain,
	kind models.Kind,
	id string,
	wallet string,
	normalize func(raw interface{}) (owner string, entity interface{}, persist func(context.Context) error, err error),
) (*FinalizeResult, error) {
	created, existing, err := s.finals.Claim(ctx, ch.Name, kind, id)
	if err != nil {
		return nil, err
	}
	if !created && existing != nil {
		switch existing.Status {
		case models.StatusFinalized:
			metrics.FinalizationsTotal.WithLabelValues(string(kind), "duplicate").Inc()
			return &FinalizeResult{AlreadyFinalized: true}, nil
		case models.StatusRecording:
			if time.Since(existing.UpdatedAt) < recordingStaleAfter {
				return nil, fmt.Errorf("%w: %s %s on %s is being recorded", cberrors.ErrDuplicateFinalization, kind, id, ch.Name)
			}
			s.log.WithFields(logrus.Fields{
				"chain": ch.Name, "kind": kind, "id": id,
			}).Warn("Retrying stale recording claim")
		case models.StatusFailedRecording:
			// A previous attempt failed; this request retries in place.
		}
	}

	entity, err := s.record(ctx, ch, kind, id, wallet, normalize)
	if err != nil {
		outcome := "failed"
		if errors.Is(err, cberrors.ErrEntityNotFound) {
			outcome = "not_found"
		} else if cberrors.IsTransient(err) {
			outcome = "transient_error"
		}
		metrics.FinalizationsTotal.WithLabelValues(string(kind), outcome).Inc()
		// The request context may already be cancelled (that can be why
		// record failed); the failure mark must still land or the claim
		// stays exclusive until it goes stale.
		if markErr := s.finals.MarkFailed(context.WithoutCancel(ctx), ch.Name, kind, id, err.Error()); markErr != nil {
			s.log.WithError(markErr).WithFields(logrus.Fields{
				"chain": ch.Name, "kind": kind, "id": id,
			}).Error("Failed to record finalization failure")
		}
		return nil, err
	}

	if err := s.finals.MarkFinalized(ctx, ch.Name, kind, id); err != nil {
		return nil, err
	}
	metrics.FinalizationsTotal.WithLabelValues(string(kind), "finalized").Inc()

	s.refreshUser(ctx, ch, wallet)
	s.notify(ctx, ch, kind, id, entity)

	return &FinalizeResult{Entity: entity}, nil
}

// record fetches, normalizes, authorizes and persists one entity.
func (s *FinalizeService) record(
	ctx context.Context,
	ch chains.Chain,
	kind models.Kind,
	id string,
	wallet string,
	normalize func(raw interface{}) (string, interface{}, func(context.Context) error, error),
) (interface{}, error) {
	key := cache.EntityKey{Chain: ch.Name, Kind: kind, ID: id}
	raw, hit := s.cache.GetEntity(key)
	if hit {
		metrics.CacheHitsTotal.WithLabelValues("entity").Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues("entity").Inc()
		var err error
		raw, err = s.fetcher.Fetch(ctx, ch, kind, id)
		if err != nil {
			return nil, err
		}
		s.cache.PutEntity(key, raw)
	}

	owner, entity, persist, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	if !addrcodec.Equal(owner, wallet, ch) {
		return nil, fmt.Errorf("%w: %s %s on %s belongs to %s", cberrors.ErrUnauthorizedHost, kind, id, ch.Name, owner)
	}
	if err := persist(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

// refreshUser re-reads the wallet's activity counters after a finalization.
// Best effort: the canonical entity is already persisted, so a stale user
// snapshot only delays listings.
func (s *FinalizeService) refreshUser(ctx context.Context, ch chains.Chain, wallet string) {
	raw, err := s.fetcher.Fetch(ctx, ch, models.KindUser, wallet)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"chain": ch.Name, "wallet": wallet,
		}).Warn("Failed to refresh user snapshot")
		return
	}
	u, err := normalizer.NormalizeUser(ch, wallet, raw)
	if err != nil {
		s.log.WithError(err).Warn("Failed to normalize user snapshot")
		return
	}
	if err := s.users.Upsert(ctx, u); err != nil {
		s.log.WithError(err).Warn("Failed to persist user snapshot")
	}
}

// notify fires the one-time host notification. The claim makes the send
// exactly-once across processes; a lost claim means someone else sent it.
func (s *FinalizeService) notify(ctx context.Context, ch chains.Chain, kind models.Kind, id string, entity interface{}) {
	won, err := s.finals.ClaimNotification(ctx, ch.Name, kind, id)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"chain": ch.Name, "kind": kind, "id": id,
		}).Error("Failed to claim notification")
		return
	}
	if !won {
		return
	}
	event := FinalizedEvent{Chain: ch.Name, Kind: kind, EntityID: id, Entity: entity}
	if err := s.notifier.PublishFinalized(event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"chain": ch.Name, "kind": kind, "id": id,
		}).Error("Failed to publish finalization event")
	}
}
