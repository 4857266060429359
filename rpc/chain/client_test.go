package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/status-escrow/circuitbreaker"
)

type revertError struct {
	data string
}

func (e revertError) Error() string          { return "execution reverted" }
func (e revertError) ErrorCode() int         { return 3 }
func (e revertError) ErrorData() interface{} { return e.data }

type fakeEthService struct {
	chainID uint64
	block   uint64
	calls   int
}

func (s *fakeEthService) ChainId() *hexutil.Big {
	s.calls++
	return (*hexutil.Big)(new(big.Int).SetUint64(s.chainID))
}

func (s *fakeEthService) BlockNumber() hexutil.Uint64 {
	s.calls++
	return hexutil.Uint64(s.block)
}

func (s *fakeEthService) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	s.calls++
	return nil, nil
}

func (s *fakeEthService) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	s.calls++
	return nil, revertError{data: "0x08c379a0"}
}

func newInProcClient(t *testing.T, svc *fakeEthService) *rpc.Client {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	t.Cleanup(server.Stop)
	return rpc.DialInProc(server)
}

func testCBConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		Timeout:               5000,
		MaxConcurrentRequests: 100,
		SleepWindow:           300000,
		ErrorPercentThreshold: 25,
	}
}

func uniqueChainID() uint64 {
	return uint64(time.Now().UnixNano())
}

func TestClientWithFallback_MainServes(t *testing.T) {
	main := &fakeEthService{chainID: 1337, block: 42}
	fallback := &fakeEthService{chainID: 1337, block: 7}
	c := NewClient(newInProcClient(t, main), newInProcClient(t, fallback), uniqueChainID(), testCBConfig(), nil)
	defer c.Close()

	number, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), number)
	require.Equal(t, 0, fallback.calls)
	require.True(t, c.IsConnected())
}

func TestClientWithFallback_FallbackOnTransportError(t *testing.T) {
	mainClient := newInProcClient(t, &fakeEthService{chainID: 1337})
	mainClient.Close()

	fallback := &fakeEthService{chainID: 1337, block: 7}
	c := NewClient(mainClient, newInProcClient(t, fallback), uniqueChainID(), testCBConfig(), nil)

	number, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), number)
	require.Equal(t, 1, fallback.calls)
}

func TestClientWithFallback_NotFoundIsNotRetried(t *testing.T) {
	main := &fakeEthService{}
	fallback := &fakeEthService{}
	c := NewClient(newInProcClient(t, main), newInProcClient(t, fallback), uniqueChainID(), testCBConfig(), nil)

	_, err := c.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, ethereum.NotFound)
	require.Equal(t, 1, main.calls)
	require.Equal(t, 0, fallback.calls)
}

func TestClientWithFallback_RevertKeepsErrorData(t *testing.T) {
	main := &fakeEthService{}
	fallback := &fakeEthService{}
	c := NewClient(newInProcClient(t, main), newInProcClient(t, fallback), uniqueChainID(), testCBConfig(), nil)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	_, err := c.CallContract(context.Background(), ethereum.CallMsg{To: &to}, nil)
	require.Error(t, err)

	var dataErr rpc.DataError
	require.True(t, errors.As(err, &dataErr))
	require.Equal(t, "0x08c379a0", dataErr.ErrorData())
	require.Equal(t, 0, fallback.calls)
	require.True(t, c.IsConnected())
}

func TestClientWithFallback_AllUpstreamsDown(t *testing.T) {
	mainClient := newInProcClient(t, &fakeEthService{})
	mainClient.Close()

	notified := make(chan bool, 2)
	c := NewClient(mainClient, nil, uniqueChainID(), testCBConfig(), nil)
	c.Notifier = func(chainID uint64, connected bool) {
		notified <- connected
	}

	for i := 0; i < 2; i++ {
		_, err := c.ChainIDAt(context.Background())
		require.Error(t, err)
	}
	require.False(t, c.IsConnected())
	require.False(t, <-notified)
}

func TestClientWithFallback_RateLimited(t *testing.T) {
	main := &fakeEthService{block: 1}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c := NewClient(newInProcClient(t, main), nil, uniqueChainID(), testCBConfig(), limiter)

	_, err := c.BlockNumber(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.BlockNumber(ctx)
	require.Error(t, err)
	require.Equal(t, 1, main.calls)
}

func TestClientWithFallback_NoUpstream(t *testing.T) {
	c := NewClient(nil, nil, uniqueChainID(), testCBConfig(), nil)
	_, err := c.BlockNumber(context.Background())
	require.ErrorIs(t, err, ErrNoUpstream)
}

func TestIsLedgerError(t *testing.T) {
	require.True(t, isLedgerError(ethereum.NotFound))
	require.True(t, isLedgerError(errors.New("execution reverted: not the client")))
	require.True(t, isLedgerError(fmt.Errorf("wrapped: %w", revertError{})))
	require.False(t, isLedgerError(rpc.ErrClientQuit))
	require.False(t, isLedgerError(context.DeadlineExceeded))
}
