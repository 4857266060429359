package transactions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/status-im/status-escrow/async"
	"github.com/status-im/status-escrow/logutils"
	"github.com/status-im/status-escrow/metrics"
)

const (
	// EventPendingTransactionUpdate is emitted when a pending transaction is added or finalized
	EventPendingTransactionUpdate EventType = "pending-transaction-update"

	DefaultPollInterval    = 2 * time.Second
	DefaultFinalityTimeout = 10 * time.Minute
	receiptRequestTimeout  = 10 * time.Second
)

var ErrPendingNotFound = errors.New("pending transaction not found")

type EventType string

type Event struct {
	Type     EventType        `json:"type"`
	ChainID  uint64           `json:"chainId"`
	Hash     common.Hash      `json:"hash"`
	Accounts []common.Address `json:"accounts"`
	At       int64            `json:"at"`
	// Status is empty while the transaction is pending, "success" or "failed" once finalized.
	Status string `json:"status,omitempty"`
}

type PendingTrxType string

const (
	DeployAgreement PendingTrxType = "DeployAgreement"
	ConfirmWork     PendingTrxType = "ConfirmWork"
	ReleasePayment  PendingTrxType = "ReleasePayment"
)

type PendingTransaction struct {
	Hash      common.Hash    `json:"hash"`
	Timestamp uint64         `json:"timestamp"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Type      PendingTrxType `json:"type"`
	ChainID   uint64         `json:"network_id"`
	// ActionID correlates the transaction with the action that submitted it.
	ActionID string `json:"action_id"`
}

// ReceiptReader is the part of the ledger client used to observe finality.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TransactionManager keeps submitted transactions in memory until their
// receipts are observed. Nothing is persisted.
type TransactionManager struct {
	mu        sync.RWMutex
	pending   map[common.Hash]*PendingTransaction
	eventFeed *event.Feed

	pollInterval    time.Duration
	finalityTimeout time.Duration
	logger          *zap.Logger
}

func NewTransactionManager(eventFeed *event.Feed, pollInterval, finalityTimeout time.Duration) *TransactionManager {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if finalityTimeout <= 0 {
		finalityTimeout = DefaultFinalityTimeout
	}
	return &TransactionManager{
		pending:         make(map[common.Hash]*PendingTransaction),
		eventFeed:       eventFeed,
		pollInterval:    pollInterval,
		finalityTimeout: finalityTimeout,
		logger:          logutils.ZapLogger().Named("transactions"),
	}
}

func (tm *TransactionManager) GetAllPending() []*PendingTransaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	values := maps.Values(tm.pending)
	transactions := make([]*PendingTransaction, 0, len(values))
	for _, tx := range values {
		cp := *tx
		transactions = append(transactions, &cp)
	}
	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].Timestamp < transactions[j].Timestamp
	})
	return transactions
}

func (tm *TransactionManager) GetPendingByAddress(address common.Address) []*PendingTransaction {
	var result []*PendingTransaction
	for _, tx := range tm.GetAllPending() {
		if tx.From == address {
			result = append(result, tx)
		}
	}
	return result
}

// GetPendingEntry returns ErrPendingNotFound if no pending transaction is found for the hash
func (tm *TransactionManager) GetPendingEntry(hash common.Hash) (*PendingTransaction, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tx, ok := tm.pending[hash]
	if !ok {
		return nil, ErrPendingNotFound
	}
	cp := *tx
	return &cp, nil
}

func (tm *TransactionManager) AddPending(transaction *PendingTransaction) error {
	if transaction == nil {
		return errors.New("transaction is nil")
	}
	if transaction.Timestamp == 0 {
		transaction.Timestamp = uint64(time.Now().Unix())
	}

	tm.mu.Lock()
	cp := *transaction
	tm.pending[transaction.Hash] = &cp
	count := len(tm.pending)
	tm.mu.Unlock()

	metrics.SetPending(count)
	tm.logger.Info("pending transaction added",
		zap.Stringer("hash", transaction.Hash),
		zap.String("type", string(transaction.Type)),
		zap.String("actionID", transaction.ActionID))
	tm.notifyPendingTransactionListeners(transaction, "")
	return nil
}

func (tm *TransactionManager) notifyPendingTransactionListeners(tx *PendingTransaction, status string) {
	if tm.eventFeed != nil {
		tm.eventFeed.Send(Event{
			Type:     EventPendingTransactionUpdate,
			ChainID:  tx.ChainID,
			Hash:     tx.Hash,
			Accounts: []common.Address{tx.From, tx.To},
			At:       int64(tx.Timestamp),
			Status:   status,
		})
	}
}

func (tm *TransactionManager) deletePending(hash common.Hash, status string) {
	tm.mu.Lock()
	tx, ok := tm.pending[hash]
	delete(tm.pending, hash)
	count := len(tm.pending)
	tm.mu.Unlock()

	if !ok {
		return
	}
	metrics.SetPending(count)
	tm.notifyPendingTransactionListeners(tx, status)
}

// Watch polls the ledger until a receipt for hash is available or ctx ends.
// The entry is removed once the receipt is known; on ctx expiry the entry stays
// pending since the ledger may still finalize it.
func (tm *TransactionManager) Watch(ctx context.Context, hash common.Hash, client ReceiptReader) (*types.Receipt, error) {
	tm.logger.Debug("watching transaction", zap.Stringer("hash", hash))
	started := time.Now()

	watchTxCommand := &watchTransactionCommand{
		hash:   hash,
		client: client,
		logger: tm.logger,
	}

	commandContext, cancel := context.WithTimeout(ctx, tm.finalityTimeout)
	defer cancel()

	err := async.FiniteCommand{
		Interval: tm.pollInterval,
		Runable:  watchTxCommand.Run,
	}.Run(commandContext)
	if err != nil {
		tm.logger.Warn("watch transaction stopped", zap.Stringer("hash", hash), zap.Error(err))
		return nil, err
	}

	metrics.ObserveFinality(time.Since(started))
	status := "success"
	if watchTxCommand.receipt.Status != types.ReceiptStatusSuccessful {
		status = "failed"
	}
	tm.deletePending(hash, status)
	return watchTxCommand.receipt, nil
}

type watchTransactionCommand struct {
	client  ReceiptReader
	hash    common.Hash
	receipt *types.Receipt
	logger  *zap.Logger
}

func (c *watchTransactionCommand) Run(ctx context.Context) error {
	requestContext, cancel := context.WithTimeout(ctx, receiptRequestTimeout)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(requestContext, c.hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("receipt request failed", zap.Stringer("hash", c.hash), zap.Error(err))
		}
		return err
	}
	if receipt == nil {
		return ethereum.NotFound
	}
	c.receipt = receipt
	return nil
}
