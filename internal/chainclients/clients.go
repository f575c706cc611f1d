// Package chainclients owns every connection to a chain RPC endpoint. The
// container is built once at startup from config and passed explicitly to
// the resolver and reader; there are no module-level connection singletons.
//
// This package is also the error-classification boundary: everything it
// returns is either a typed not-found, a typed transient failure, or a
// fatal error. Downstream code discriminates with errors.Is only.
package chainclients

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/config"
)

// Clients holds one read client per enabled chain.
type Clients struct {
	evm      map[string]*EVMClient
	solana   map[string]*SolanaClient
	cosmwasm map[string]*CosmwasmClient
	log      *logrus.Logger
}

// New dials every chain that is both registered and enabled in config.
func New(cfg *config.Config, log *logrus.Logger) (*Clients, error) {
	c := &Clients{
		evm:      make(map[string]*EVMClient),
		solana:   make(map[string]*SolanaClient),
		cosmwasm: make(map[string]*CosmwasmClient),
		log:      log,
	}

	for _, ch := range chains.All() {
		cc, err := cfg.ChainFor(ch.Name)
		if err != nil {
			log.WithField("chain", ch.Name).Warn("chain not configured, skipping")
			continue
		}
		switch ch.Family {
		case chains.FamilyEvm:
			cl, err := newEVMClient(ch, cc, log)
			if err != nil {
				return nil, fmt.Errorf("dial %s: %w", ch.Name, err)
			}
			c.evm[ch.Name] = cl
		case chains.FamilySolana:
			cl, err := newSolanaClient(ch, cc, log)
			if err != nil {
				return nil, fmt.Errorf("dial %s: %w", ch.Name, err)
			}
			c.solana[ch.Name] = cl
		case chains.FamilyCosmwasm:
			cl, err := newCosmwasmClient(ch, cc, log)
			if err != nil {
				return nil, fmt.Errorf("dial %s: %w", ch.Name, err)
			}
			c.cosmwasm[ch.Name] = cl
		}
		log.WithFields(logrus.Fields{
			"chain":  ch.Name,
			"family": ch.Family.String(),
		}).Info("chain client ready")
	}
	return c, nil
}

// EVM returns the client for an EVM chain.
func (c *Clients) EVM(ch chains.Chain) (*EVMClient, error) {
	cl, ok := c.evm[ch.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no evm client for %s", cberrors.ErrUnsupportedChain, ch.Name)
	}
	return cl, nil
}

// Solana returns the client for a Solana chain.
func (c *Clients) Solana(ch chains.Chain) (*SolanaClient, error) {
	cl, ok := c.solana[ch.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no solana client for %s", cberrors.ErrUnsupportedChain, ch.Name)
	}
	return cl, nil
}

// Cosmwasm returns the client for a Cosmwasm chain.
func (c *Clients) Cosmwasm(ch chains.Chain) (*CosmwasmClient, error) {
	cl, ok := c.cosmwasm[ch.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no cosmwasm client for %s", cberrors.ErrUnsupportedChain, ch.Name)
	}
	return cl, nil
}

// Close releases every underlying connection.
func (c *Clients) Close() {
	for _, cl := range c.evm {
		cl.Close()
	}
}
