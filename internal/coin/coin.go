package coin

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrLightningUnsupported is returned by NodeID when the wallet daemon has no
// lightning node. Callers skip the lightning payment method and keep the
// on-chain one.
var ErrLightningUnsupported = errors.New("coin: lightning unsupported")

// ErrNoDaemon is returned by the registry for currencies without a configured
// wallet daemon.
var ErrNoDaemon = errors.New("coin: no daemon for currency")

// Request is a freshly minted on-chain payment request.
type Request struct {
	Address   string
	URI       string
	LookupKey string
}

// Invoice is a freshly minted lightning invoice (BOLT-11).
type Invoice struct {
	Invoice string
	RHash   string
}

// RequestStatus is the daemon's view of a payment request.
type RequestStatus struct {
	Status        string
	TxHashes      []string
	SentAmount    decimal.Decimal
	Confirmations int
}

// TxInfo carries the confirmation count of a single transaction.
type TxInfo struct {
	Confirmations int
}

// Client is the wallet-daemon contract for one currency. Implementations wrap
// a remote daemon; every call may block on network I/O.
type Client interface {
	// AddRequest mints a payment address for amount in the coin's own unit,
	// expiring after expire seconds.
	AddRequest(ctx context.Context, xpub string, amount decimal.Decimal, description string, expire int64) (*Request, error)
	// AddInvoice is the lightning counterpart of AddRequest.
	AddInvoice(ctx context.Context, xpub string, amount decimal.Decimal, description string, expire int64) (*Invoice, error)
	// NodeID probes lightning capability. Returns ErrLightningUnsupported
	// when the daemon runs without a node.
	NodeID(ctx context.Context) (string, error)
	GetRequest(ctx context.Context, xpub, lookupKey string) (*RequestStatus, error)
	GetTx(ctx context.Context, txHash string) (*TxInfo, error)
	// RecommendedFee estimates the network fee, in the coin's own unit, for
	// confirmation within targetBlocks.
	RecommendedFee(ctx context.Context, targetBlocks int) (decimal.Decimal, error)
}
