package coin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// rpcMethodNotFound is the JSON-RPC 2.0 code daemons answer with when the
// lightning methods are not compiled in.
const rpcMethodNotFound = -32601

// Daemon is a JSON-RPC 2.0 client for a single currency's wallet daemon.
type Daemon struct {
	currency string
	endpoint string
	user     string
	password string
	http     *retryablehttp.Client
	log      *zap.Logger
	seq      atomic.Int64
}

func NewDaemon(currency, endpoint, user, password string, client *retryablehttp.Client, log *zap.Logger) *Daemon {
	return &Daemon{
		currency: currency,
		endpoint: endpoint,
		user:     user,
		password: password,
		http:     client,
		log:      log.Named("coin.daemon").With(zap.String("currency", currency)),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (d *Daemon) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      d.seq.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("coin: marshal %s: %w", method, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.user != "" {
		req.SetBasicAuth(d.user, d.password)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("coin: %s %s: %w", d.currency, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coin: %s %s: unexpected status %d", d.currency, method, resp.StatusCode)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("coin: %s %s: decode: %w", d.currency, method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("coin: %s %s: decode result: %w", d.currency, method, err)
		}
	}
	return nil
}

func (d *Daemon) AddRequest(ctx context.Context, xpub string, amount decimal.Decimal, description string, expire int64) (*Request, error) {
	var result struct {
		Address   string `json:"address"`
		URI       string `json:"URI"`
		LookupKey string `json:"id"`
	}
	err := d.call(ctx, "add_request", map[string]any{
		"xpub":        xpub,
		"amount":      amount.String(),
		"description": description,
		"expire":      expire,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &Request{Address: result.Address, URI: result.URI, LookupKey: result.LookupKey}, nil
}

func (d *Daemon) AddInvoice(ctx context.Context, xpub string, amount decimal.Decimal, description string, expire int64) (*Invoice, error) {
	var result struct {
		Invoice string `json:"invoice"`
		RHash   string `json:"rhash"`
	}
	err := d.call(ctx, "add_invoice", map[string]any{
		"xpub":        xpub,
		"amount":      amount.String(),
		"description": description,
		"expire":      expire,
	}, &result)
	if err != nil {
		return nil, wrapLightning(err)
	}
	return &Invoice{Invoice: result.Invoice, RHash: result.RHash}, nil
}

func (d *Daemon) NodeID(ctx context.Context) (string, error) {
	var nodeID string
	if err := d.call(ctx, "node_id", nil, &nodeID); err != nil {
		return "", wrapLightning(err)
	}
	if nodeID == "" {
		return "", ErrLightningUnsupported
	}
	return nodeID, nil
}

func (d *Daemon) GetRequest(ctx context.Context, xpub, lookupKey string) (*RequestStatus, error) {
	var result struct {
		Status        string          `json:"status"`
		TxHashes      []string        `json:"tx_hashes"`
		SentAmount    decimal.Decimal `json:"sent_amount"`
		Confirmations int             `json:"confirmations"`
	}
	err := d.call(ctx, "get_request", map[string]any{
		"xpub": xpub,
		"id":   lookupKey,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &RequestStatus{
		Status:        result.Status,
		TxHashes:      result.TxHashes,
		SentAmount:    result.SentAmount,
		Confirmations: result.Confirmations,
	}, nil
}

func (d *Daemon) GetTx(ctx context.Context, txHash string) (*TxInfo, error) {
	var result struct {
		Confirmations int `json:"confirmations"`
	}
	if err := d.call(ctx, "get_tx", map[string]any{"tx_hash": txHash}, &result); err != nil {
		return nil, err
	}
	return &TxInfo{Confirmations: result.Confirmations}, nil
}

func (d *Daemon) RecommendedFee(ctx context.Context, targetBlocks int) (decimal.Decimal, error) {
	var fee decimal.Decimal
	if err := d.call(ctx, "recommended_fee", map[string]any{"target": targetBlocks}, &fee); err != nil {
		return decimal.Zero, err
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("coin: %s: negative fee estimate %s", d.currency, fee)
	}
	return fee, nil
}

// wrapLightning maps a method-not-found answer to the typed capability error,
// so callers can skip lightning without inspecting daemon internals.
func wrapLightning(err error) error {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) && rpcErr.Code == rpcMethodNotFound {
		return ErrLightningUnsupported
	}
	return err
}
