package chainclients

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/config"
	"payables-relay/internal/metrics"
)

// SolanaClient reads program accounts on one Solana chain.
type SolanaClient struct {
	chain   chains.Chain
	rpc     *rpc.Client
	program solanago.PublicKey
	log     *logrus.Logger
}

func newSolanaClient(ch chains.Chain, cc config.ChainConfig, log *logrus.Logger) (*SolanaClient, error) {
	program, err := solanago.PublicKeyFromBase58(cc.Contract)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q for %s: %w", cc.Contract, ch.Name, err)
	}
	return &SolanaClient{
		chain:   ch,
		rpc:     rpc.New(cc.RPCEndpoint),
		program: program,
		log:     log,
	}, nil
}

// ProgramID returns the payables program id.
func (c *SolanaClient) ProgramID() solanago.PublicKey {
	return c.program
}

// FetchAccountData returns the raw account bytes for addr at finalized
// commitment. A missing account is ErrEntityNotFound; transport failures
// are transient.
func (c *SolanaClient) FetchAccountData(ctx context.Context, addr solanago.PublicKey) ([]byte, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentFinalized,
	})
	metrics.ChainReadDuration.WithLabelValues(c.chain.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "not_found").Inc()
			return nil, fmt.Errorf("%w: account %s on %s", cberrors.ErrEntityNotFound, addr, c.chain.Name)
		}
		metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "transient_error").Inc()
		return nil, cberrors.Transient(fmt.Sprintf("getAccountInfo %s on %s", addr, c.chain.Name), err)
	}
	if out == nil || out.Value == nil {
		metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "not_found").Inc()
		return nil, fmt.Errorf("%w: account %s on %s", cberrors.ErrEntityNotFound, addr, c.chain.Name)
	}
	metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "ok").Inc()
	return out.Value.Data.GetBinary(), nil
}
