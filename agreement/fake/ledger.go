// Package fake provides an in-memory ledger hosting escrow agreements. It
// signs nothing itself: transactions must arrive signed for the ledger's
// chain id, and senders are recovered from signatures.
package fake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	agreementcontract "github.com/status-im/status-escrow/contracts/agreement"
)

const (
	StatusCreated uint8 = iota
	StatusWorkConfirmed
	StatusCompleted
)

// Revert messages of the agreement contract.
const (
	ReasonOnlyClient        = "Only client can perform this action"
	ReasonNotCreated        = "Work already confirmed"
	ReasonNotConfirmed      = "Work not confirmed yet"
	ReasonAlreadyCompleted  = "Payment already released"
	ReasonPaymentRequired   = "Payment required"
	ReasonInvalidFreelancer = "Invalid freelancer"
)

var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	gasPrice      = big.NewInt(1_000_000_000)
	code          = []byte{0x60, 0x80, 0x60, 0x40, 0x52}

	// DefaultBytecode is what DeployArtifact returns; deployment input must start with it.
	DefaultBytecode = []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x34, 0x80, 0x15}
)

// RevertError mimics the error returned by a node for a reverted call.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) ErrorCode() int {
	return 3
}

func (e *RevertError) ErrorData() interface{} {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(e.Reason)
	return hexutil.Encode(append(append([]byte{}, errorSelector...), packed...))
}

type escrow struct {
	client     common.Address
	freelancer common.Address
	text       string
	amount     *big.Int
	status     uint8
	previous   uint8
}

type queuedTx struct {
	tx   *types.Transaction
	from common.Address
}

// Ledger implements the contract backend and deploy backend used by bindings.
type Ledger struct {
	mu       sync.Mutex
	chainID  *big.Int
	abi      *abi.ABI
	bytecode []byte

	agreements map[common.Address]*escrow
	nonces     map[common.Address]uint64
	balances   map[common.Address]*big.Int
	receipts   map[common.Hash]*types.Receipt
	queue      []queuedTx
	block      uint64
	autoMine   bool

	readErr    error
	sendErr    error
	staleReads int

	calls     int
	reads     int
	sends     int
	estimates int
}

func NewLedger(chainID *big.Int) *Ledger {
	parsed, err := agreementcontract.AgreementMetaData.GetAbi()
	if err != nil {
		panic(err)
	}
	return &Ledger{
		chainID:    new(big.Int).Set(chainID),
		abi:        parsed,
		bytecode:   DefaultBytecode,
		agreements: make(map[common.Address]*escrow),
		nonces:     make(map[common.Address]uint64),
		balances:   make(map[common.Address]*big.Int),
		receipts:   make(map[common.Hash]*types.Receipt),
		autoMine:   true,
	}
}

// DeployArtifact returns an artifact the ledger accepts for deployments.
func (l *Ledger) DeployArtifact() *agreementcontract.Artifact {
	return &agreementcontract.Artifact{ABI: *l.abi, Bytecode: DefaultBytecode}
}

// SetAutoMine controls whether transactions are mined on submission. With
// auto mining off they wait in the queue until Commit.
func (l *Ledger) SetAutoMine(auto bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoMine = auto
}

// Commit mines every queued transaction into a new block.
func (l *Ledger) Commit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mineLocked()
}

// FailReads makes getDetails calls fail with err until cleared with nil.
func (l *Ledger) FailReads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// FailSends makes SendTransaction fail with err until cleared with nil.
func (l *Ledger) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// ServeStaleReads makes the next n getDetails calls report the status the
// agreement had before its last transition.
func (l *Ledger) ServeStaleReads(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.staleReads = n
}

// CreateAgreement inserts an agreement directly, without a transaction.
func (l *Ledger) CreateAgreement(client, freelancer common.Address, text string, amount *big.Int) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()

	nonce := l.nonces[client]
	l.nonces[client] = nonce + 1
	address := crypto.CreateAddress(client, nonce)
	l.agreements[address] = &escrow{
		client:     client,
		freelancer: freelancer,
		text:       text,
		amount:     new(big.Int).Set(amount),
	}
	return address
}

func (l *Ledger) Status(agreement common.Address) (uint8, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.agreements[agreement]
	if !ok {
		return 0, false
	}
	return a.status, true
}

func (l *Ledger) Balance(address common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[address]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// CallCount is the number of CallContract requests, reads included.
func (l *Ledger) CallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *Ledger) ReadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

func (l *Ledger) SendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sends
}

func (l *Ledger) EstimateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.estimates
}

// RemoteCalls is the number of requests that reached the ledger.
func (l *Ledger) RemoteCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls + l.sends + l.estimates
}

func (l *Ledger) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.agreements[contract]; ok {
		return code, nil
	}
	return nil, nil
}

func (l *Ledger) PendingCodeAt(ctx context.Context, contract common.Address) ([]byte, error) {
	return l.CodeAt(ctx, contract, nil)
}

func (l *Ledger) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++

	if call.To == nil {
		return nil, errors.New("call without recipient")
	}
	a, ok := l.agreements[*call.To]
	if !ok {
		return nil, nil
	}
	method, err := l.method(call.Data)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "getDetails":
		l.reads++
		if l.readErr != nil {
			return nil, l.readErr
		}
		status := a.status
		if l.staleReads > 0 {
			l.staleReads--
			status = a.previous
		}
		return method.Outputs.Pack(a.client, a.freelancer, a.text, new(big.Int).Set(a.amount), status)
	default:
		if err := a.check(method.Name, call.From); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func (l *Ledger) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// no base fee, bindings fall back to legacy transactions
	return &types.Header{Number: new(big.Int).SetUint64(l.block)}, nil
}

func (l *Ledger) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[account], nil
}

func (l *Ledger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(gasPrice), nil
}

func (l *Ledger) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (l *Ledger) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.estimates++

	if call.To == nil {
		if _, _, err := l.unpackDeploy(call.Data, call.Value); err != nil {
			return 0, err
		}
		return 500000, nil
	}
	a, ok := l.agreements[*call.To]
	if !ok {
		return 21000, nil
	}
	method, err := l.method(call.Data)
	if err != nil {
		return 0, err
	}
	if err := a.check(method.Name, call.From); err != nil {
		return 0, err
	}
	return 60000, nil
}

func (l *Ledger) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sends++

	if l.sendErr != nil {
		return l.sendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(l.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if expected := l.nonces[from]; tx.Nonce() != expected {
		return fmt.Errorf("invalid nonce: have %d, want %d", tx.Nonce(), expected)
	}
	l.nonces[from] = tx.Nonce() + 1
	l.queue = append(l.queue, queuedTx{tx: tx, from: from})
	if l.autoMine {
		l.mineLocked()
	}
	return nil
}

func (l *Ledger) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	receipt, ok := l.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (l *Ledger) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (l *Ledger) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (l *Ledger) method(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, &RevertError{}
	}
	method, err := l.abi.MethodById(data[:4])
	if err != nil {
		return nil, &RevertError{}
	}
	return method, nil
}

func (l *Ledger) unpackDeploy(data []byte, value *big.Int) (common.Address, string, error) {
	if !bytes.HasPrefix(data, l.bytecode) {
		return common.Address{}, "", errors.New("unknown contract bytecode")
	}
	args, err := l.abi.Constructor.Inputs.Unpack(data[len(l.bytecode):])
	if err != nil {
		return common.Address{}, "", err
	}
	freelancer := *abi.ConvertType(args[0], new(common.Address)).(*common.Address)
	text := *abi.ConvertType(args[1], new(string)).(*string)
	if value == nil || value.Sign() <= 0 {
		return common.Address{}, "", &RevertError{Reason: ReasonPaymentRequired}
	}
	if freelancer == (common.Address{}) {
		return common.Address{}, "", &RevertError{Reason: ReasonInvalidFreelancer}
	}
	return freelancer, text, nil
}

func (l *Ledger) mineLocked() {
	if len(l.queue) == 0 {
		return
	}
	l.block++
	blockNumber := new(big.Int).SetUint64(l.block)
	blockHash := crypto.Keccak256Hash(blockNumber.Bytes(), l.chainID.Bytes())

	for i, q := range l.queue {
		receipt := &types.Receipt{
			Type:             q.tx.Type(),
			Status:           types.ReceiptStatusSuccessful,
			TxHash:           q.tx.Hash(),
			GasUsed:          q.tx.Gas(),
			BlockHash:        blockHash,
			BlockNumber:      blockNumber,
			TransactionIndex: uint(i),
		}
		if err := l.apply(q, receipt); err != nil {
			receipt.Status = types.ReceiptStatusFailed
		}
		l.receipts[q.tx.Hash()] = receipt
	}
	l.queue = nil
}

func (l *Ledger) apply(q queuedTx, receipt *types.Receipt) error {
	if q.tx.To() == nil {
		freelancer, text, err := l.unpackDeploy(q.tx.Data(), q.tx.Value())
		if err != nil {
			return err
		}
		address := crypto.CreateAddress(q.from, q.tx.Nonce())
		l.agreements[address] = &escrow{
			client:     q.from,
			freelancer: freelancer,
			text:       text,
			amount:     new(big.Int).Set(q.tx.Value()),
		}
		receipt.ContractAddress = address
		return nil
	}

	a, ok := l.agreements[*q.tx.To()]
	if !ok {
		return nil
	}
	method, err := l.method(q.tx.Data())
	if err != nil {
		return err
	}
	if err := a.check(method.Name, q.from); err != nil {
		return err
	}

	a.previous = a.status
	switch method.Name {
	case "confirmWork":
		a.status = StatusWorkConfirmed
	case "releasePayment":
		a.status = StatusCompleted
		balance, ok := l.balances[a.freelancer]
		if !ok {
			balance = new(big.Int)
			l.balances[a.freelancer] = balance
		}
		balance.Add(balance, a.amount)
	}
	return nil
}

func (a *escrow) check(method string, from common.Address) error {
	switch method {
	case "confirmWork":
		if from != a.client {
			return &RevertError{Reason: ReasonOnlyClient}
		}
		if a.status != StatusCreated {
			return &RevertError{Reason: ReasonNotCreated}
		}
	case "releasePayment":
		if from != a.client {
			return &RevertError{Reason: ReasonOnlyClient}
		}
		if a.status == StatusCompleted {
			return &RevertError{Reason: ReasonAlreadyCompleted}
		}
		if a.status != StatusWorkConfirmed {
			return &RevertError{Reason: ReasonNotConfirmed}
		}
	}
	return nil
}
