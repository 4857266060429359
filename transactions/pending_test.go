package transactions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

type receiptStub struct {
	mu       sync.Mutex
	receipts map[common.Hash]*types.Receipt
	requests int
}

func (r *receiptStub) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	receipt, ok := r.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (r *receiptStub) mine(hash common.Hash, status uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[hash] = &types.Receipt{TxHash: hash, Status: status}
}

func TestPendingSuite(t *testing.T) {
	suite.Run(t, new(PendingSuite))
}

type PendingSuite struct {
	suite.Suite

	feed    *event.Feed
	events  chan Event
	sub     event.Subscription
	stub    *receiptStub
	manager *TransactionManager
}

func (s *PendingSuite) SetupTest() {
	s.feed = new(event.Feed)
	s.events = make(chan Event, 10)
	s.sub = s.feed.Subscribe(s.events)
	s.stub = &receiptStub{receipts: make(map[common.Hash]*types.Receipt)}
	s.manager = NewTransactionManager(s.feed, time.Millisecond, time.Second)
}

func (s *PendingSuite) TearDownTest() {
	s.sub.Unsubscribe()
}

func (s *PendingSuite) nextEvent() Event {
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(time.Second):
		s.FailNow("no event received")
	}
	return Event{}
}

func (s *PendingSuite) TestAddAndGet() {
	hash := common.HexToHash("0x01")
	from := common.HexToAddress("0x0a")
	s.Require().NoError(s.manager.AddPending(&PendingTransaction{
		Hash:     hash,
		From:     from,
		Type:     ConfirmWork,
		ChainID:  1337,
		ActionID: "action-1",
	}))

	ev := s.nextEvent()
	s.Require().Equal(EventPendingTransactionUpdate, ev.Type)
	s.Require().Equal(hash, ev.Hash)
	s.Require().Empty(ev.Status)

	entry, err := s.manager.GetPendingEntry(hash)
	s.Require().NoError(err)
	s.Require().Equal(ConfirmWork, entry.Type)
	s.Require().NotZero(entry.Timestamp)

	s.Require().Len(s.manager.GetAllPending(), 1)
	s.Require().Len(s.manager.GetPendingByAddress(from), 1)
	s.Require().Empty(s.manager.GetPendingByAddress(common.HexToAddress("0x0b")))

	_, err = s.manager.GetPendingEntry(common.HexToHash("0x02"))
	s.Require().ErrorIs(err, ErrPendingNotFound)
}

func (s *PendingSuite) TestGetAllPendingSortedByTimestamp() {
	s.Require().NoError(s.manager.AddPending(&PendingTransaction{Hash: common.HexToHash("0x02"), Timestamp: 20}))
	s.Require().NoError(s.manager.AddPending(&PendingTransaction{Hash: common.HexToHash("0x01"), Timestamp: 10}))

	all := s.manager.GetAllPending()
	s.Require().Len(all, 2)
	s.Require().Equal(uint64(10), all[0].Timestamp)
	s.Require().Equal(uint64(20), all[1].Timestamp)
}

func (s *PendingSuite) TestWatchUntilMined() {
	hash := common.HexToHash("0x03")
	s.Require().NoError(s.manager.AddPending(&PendingTransaction{Hash: hash}))
	s.nextEvent()

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.stub.mine(hash, types.ReceiptStatusSuccessful)
	}()

	receipt, err := s.manager.Watch(context.Background(), hash, s.stub)
	s.Require().NoError(err)
	s.Require().Equal(types.ReceiptStatusSuccessful, receipt.Status)

	ev := s.nextEvent()
	s.Require().Equal("success", ev.Status)
	_, err = s.manager.GetPendingEntry(hash)
	s.Require().ErrorIs(err, ErrPendingNotFound)
}

func (s *PendingSuite) TestWatchFailedReceipt() {
	hash := common.HexToHash("0x04")
	s.Require().NoError(s.manager.AddPending(&PendingTransaction{Hash: hash}))
	s.nextEvent()
	s.stub.mine(hash, types.ReceiptStatusFailed)

	receipt, err := s.manager.Watch(context.Background(), hash, s.stub)
	s.Require().NoError(err)
	s.Require().Equal(types.ReceiptStatusFailed, receipt.Status)
	s.Require().Equal("failed", s.nextEvent().Status)
}

func (s *PendingSuite) TestWatchCancelledKeepsEntry() {
	hash := common.HexToHash("0x05")
	s.Require().NoError(s.manager.AddPending(&PendingTransaction{Hash: hash}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.manager.Watch(ctx, hash, s.stub)
	s.Require().ErrorIs(err, context.DeadlineExceeded)

	_, err = s.manager.GetPendingEntry(hash)
	s.Require().NoError(err)
}
