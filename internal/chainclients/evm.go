package chainclients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/config"
	"payables-relay/internal/metrics"
)

// payablesABI covers the read surface of the payables contract. Entity
// bodies come back as single named tuples so callers can convert them with
// abi.ConvertType, the same way generated bindings do.
const payablesABI = `[
  {"type":"function","stateMutability":"view","name":"userPayableIds","inputs":[{"name":"wallet","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"id","type":"bytes32"}]},
  {"type":"function","stateMutability":"view","name":"userPaymentIds","inputs":[{"name":"wallet","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"id","type":"bytes32"}]},
  {"type":"function","stateMutability":"view","name":"userWithdrawalIds","inputs":[{"name":"wallet","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"id","type":"bytes32"}]},
  {"type":"function","stateMutability":"view","name":"payablePaymentIds","inputs":[{"name":"payableId","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[{"name":"id","type":"bytes32"}]},
  {"type":"function","stateMutability":"view","name":"getPayable","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"payable","type":"tuple","components":[
    {"name":"host","type":"address"},
    {"name":"hostCount","type":"uint256"},
    {"name":"chainCount","type":"uint256"},
    {"name":"paymentsCount","type":"uint256"},
    {"name":"withdrawalsCount","type":"uint256"},
    {"name":"createdAt","type":"uint256"},
    {"name":"isClosed","type":"bool"},
    {"name":"allowedTokensAndAmounts","type":"tuple[]","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]},
    {"name":"balances","type":"tuple[]","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]}
  ]}]},
  {"type":"function","stateMutability":"view","name":"getUserPayment","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"payment","type":"tuple","components":[
    {"name":"payer","type":"address"},
    {"name":"payableId","type":"bytes32"},
    {"name":"payableChainId","type":"uint16"},
    {"name":"payerCount","type":"uint256"},
    {"name":"chainCount","type":"uint256"},
    {"name":"timestamp","type":"uint256"},
    {"name":"details","type":"tuple","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]}
  ]}]},
  {"type":"function","stateMutability":"view","name":"getPayablePayment","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"payment","type":"tuple","components":[
    {"name":"payableId","type":"bytes32"},
    {"name":"payer","type":"bytes32"},
    {"name":"payerChainId","type":"uint16"},
    {"name":"payableCount","type":"uint256"},
    {"name":"chainCount","type":"uint256"},
    {"name":"timestamp","type":"uint256"},
    {"name":"details","type":"tuple","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]}
  ]}]},
  {"type":"function","stateMutability":"view","name":"getWithdrawal","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"withdrawal","type":"tuple","components":[
    {"name":"host","type":"address"},
    {"name":"payableId","type":"bytes32"},
    {"name":"hostCount","type":"uint256"},
    {"name":"payableCount","type":"uint256"},
    {"name":"timestamp","type":"uint256"},
    {"name":"details","type":"tuple","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]}
  ]}]},
  {"type":"function","stateMutability":"view","name":"getUser","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"user","type":"tuple","components":[
    {"name":"chainCount","type":"uint256"},
    {"name":"payablesCount","type":"uint256"},
    {"name":"paymentsCount","type":"uint256"},
    {"name":"withdrawalsCount","type":"uint256"},
    {"name":"createdAt","type":"uint256"}
  ]}]}
]`

// EVMClient reads the payables contract on one EVM chain.
type EVMClient struct {
	chain    chains.Chain
	ec       *ethclient.Client
	contract common.Address
	abi      abi.ABI
	log      *logrus.Logger
}

func newEVMClient(ch chains.Chain, cc config.ChainConfig, log *logrus.Logger) (*EVMClient, error) {
	if !common.IsHexAddress(cc.Contract) {
		return nil, fmt.Errorf("invalid contract address %q for %s", cc.Contract, ch.Name)
	}
	parsed, err := abi.JSON(strings.NewReader(payablesABI))
	if err != nil {
		return nil, fmt.Errorf("parse payables abi: %w", err)
	}
	ec, err := ethclient.Dial(cc.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cc.RPCEndpoint, err)
	}
	return &EVMClient{
		chain:    ch,
		ec:       ec,
		contract: common.HexToAddress(cc.Contract),
		abi:      parsed,
		log:      log,
	}, nil
}

// Call performs an eth_call of method against the payables contract and
// returns the unpacked outputs. Transport failures come back as transient
// errors; absence is signalled in-band by zero values and is classified by
// the caller.
func (c *EVMClient) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	start := time.Now()
	raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	metrics.ChainReadDuration.WithLabelValues(c.chain.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "transient_error").Inc()
		return nil, cberrors.Transient(fmt.Sprintf("eth_call %s on %s", method, c.chain.Name), err)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "ok").Inc()
	return out, nil
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	c.ec.Close()
}
