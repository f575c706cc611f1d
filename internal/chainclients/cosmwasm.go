package chainclients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/config"
	"payables-relay/internal/metrics"
)

// grpcCodeNotFound is the gRPC status code LCD endpoints surface for
// missing contract state.
const grpcCodeNotFound = 5

// CosmwasmClient performs smart queries against the payables contract on
// one Cosmwasm chain through its LCD endpoint.
type CosmwasmClient struct {
	chain    chains.Chain
	http     *http.Client
	rest     string
	contract string
	log      *logrus.Logger
}

func newCosmwasmClient(ch chains.Chain, cc config.ChainConfig, log *logrus.Logger) (*CosmwasmClient, error) {
	if cc.RESTEndpoint == "" {
		return nil, fmt.Errorf("chain %s requires a restEndpoint", ch.Name)
	}
	if cc.Contract == "" {
		return nil, fmt.Errorf("chain %s requires a contract address", ch.Name)
	}
	return &CosmwasmClient{
		chain:    ch,
		http:     &http.Client{Timeout: 15 * time.Second},
		rest:     cc.RESTEndpoint,
		contract: cc.Contract,
		log:      log,
	}, nil
}

type lcdSmartQueryResponse struct {
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
}

// SmartQuery runs query against the contract and decodes the result into
// out. A not-found status from the contract maps to ErrEntityNotFound,
// transport failures are transient.
func (c *CosmwasmClient) SmartQuery(ctx context.Context, query interface{}, out interface{}) error {
	body, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("marshal smart query: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(body)
	endpoint := fmt.Sprintf("%s/cosmwasm/wasm/v1/contract/%s/smart/%s",
		c.rest, c.contract, url.PathEscape(encoded))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build smart query request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ChainReadDuration.WithLabelValues(c.chain.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "transient_error").Inc()
		return cberrors.Transient(fmt.Sprintf("smart query on %s", c.chain.Name), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "transient_error").Inc()
		return cberrors.Transient(fmt.Sprintf("read smart query response on %s", c.chain.Name), err)
	}

	var decoded lcdSmartQueryResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode smart query response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound || decoded.Code == grpcCodeNotFound {
		metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "not_found").Inc()
		return fmt.Errorf("%w: contract state on %s", cberrors.ErrEntityNotFound, c.chain.Name)
	}
	if resp.StatusCode >= 500 {
		metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "transient_error").Inc()
		return cberrors.Transient(fmt.Sprintf("smart query on %s", c.chain.Name),
			fmt.Errorf("lcd status %d: %s", resp.StatusCode, decoded.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("smart query on %s failed with status %d: %s", c.chain.Name, resp.StatusCode, decoded.Message)
	}
	if len(decoded.Data) == 0 || string(decoded.Data) == "null" {
		metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "not_found").Inc()
		return fmt.Errorf("%w: contract state on %s", cberrors.ErrEntityNotFound, c.chain.Name)
	}

	metrics.ChainReadsTotal.WithLabelValues(c.chain.Name, "ok").Inc()
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("decode smart query data: %w", err)
	}
	return nil
}
