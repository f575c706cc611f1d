package chains

import (
	"fmt"

	"payables-relay/internal/cberrors"
)

// ExplorerKind selects the explorer path segment for an identifier.
type ExplorerKind string

const (
	ExplorerTx      ExplorerKind = "tx"
	ExplorerAddress ExplorerKind = "address"
	ExplorerAccount ExplorerKind = "account"
)

// ExplorerURL renders the block-explorer URL for an identifier on ch. Pure
// string templating; the only failure mode is an unregistered family.
func ExplorerURL(kind ExplorerKind, identifier string, ch Chain) (string, error) {
	switch ch.Family {
	case FamilyEvm:
		seg := "address"
		if kind == ExplorerTx {
			seg = "tx"
		}
		return fmt.Sprintf("%s/%s/%s", ch.ExplorerBase, seg, identifier), nil
	case FamilySolana:
		seg := "address"
		if kind == ExplorerTx {
			seg = "tx"
		}
		// Devnet/testnet clusters carry the cluster query parameter.
		return fmt.Sprintf("%s/%s/%s?cluster=devnet", ch.ExplorerBase, seg, identifier), nil
	case FamilyCosmwasm:
		seg := "account"
		if kind == ExplorerTx {
			seg = "txs"
		}
		return fmt.Sprintf("%s/%s/%s", ch.ExplorerBase, seg, identifier), nil
	default:
		return "", fmt.Errorf("%w: %s", cberrors.ErrUnsupportedChain, ch.Name)
	}
}
