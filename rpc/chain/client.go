package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/status-escrow/circuitbreaker"
	"github.com/status-im/status-escrow/logutils"
	"github.com/status-im/status-escrow/metrics"
	"github.com/status-im/status-escrow/params"
)

var ErrNoUpstream = errors.New("no upstream rpc client configured")

// ConnectionNotifier is called whenever the ledger becomes reachable or
// unreachable.
type ConnectionNotifier func(chainID uint64, connected bool)

type upstream struct {
	circuitName string
	client      *ethclient.Client
	rpcClient   *rpc.Client
}

// ClientWithFallback is a ledger client that sends every call to the main
// endpoint first and to the fallback endpoint when the main one is failing.
// Errors produced by the ledger itself (reverts, not found) are returned as is
// and never trip a circuit.
type ClientWithFallback struct {
	ChainID uint64

	upstreams []*upstream
	cb        *circuitbreaker.CircuitBreaker
	limiter   *rate.Limiter

	Notifier ConnectionNotifier

	isConnected             bool
	consecutiveFailureCount int
	isConnectedLock         sync.RWMutex
	lastCheckedAt           int64
}

var vmErrors = []error{
	vm.ErrOutOfGas,
	vm.ErrCodeStoreOutOfGas,
	vm.ErrDepth,
	vm.ErrInsufficientBalance,
	vm.ErrContractAddressCollision,
	vm.ErrExecutionReverted,
	vm.ErrMaxCodeSizeExceeded,
	vm.ErrInvalidJump,
	vm.ErrWriteProtection,
	vm.ErrReturnDataOutOfBounds,
	vm.ErrGasUintOverflow,
	vm.ErrInvalidCode,
	vm.ErrNonceUintOverflow,
}

// NewClient wraps already dialed rpc clients. fallback and limiter may be nil.
func NewClient(main, fallback *rpc.Client, chainID uint64, config circuitbreaker.Config, limiter *rate.Limiter) *ClientWithFallback {
	c := &ClientWithFallback{
		ChainID:       chainID,
		cb:            circuitbreaker.NewCircuitBreaker(config),
		limiter:       limiter,
		isConnected:   true,
		lastCheckedAt: time.Now().Unix(),
	}
	if main != nil {
		c.upstreams = append(c.upstreams, &upstream{
			circuitName: fmt.Sprintf("ledger_%d_main", chainID),
			client:      ethclient.NewClient(main),
			rpcClient:   main,
		})
	}
	if fallback != nil {
		c.upstreams = append(c.upstreams, &upstream{
			circuitName: fmt.Sprintf("ledger_%d_fallback", chainID),
			client:      ethclient.NewClient(fallback),
			rpcClient:   fallback,
		})
	}
	return c
}

// Dial connects to the endpoints named in config.
func Dial(ctx context.Context, config params.UpstreamRPCConfig, cbConfig params.CircuitBreakerConfig, chainID uint64) (*ClientWithFallback, error) {
	main, err := rpc.DialContext(ctx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.URL, err)
	}

	var fallback *rpc.Client
	if config.FallbackURL != "" {
		fallback, err = rpc.DialContext(ctx, config.FallbackURL)
		if err != nil {
			main.Close()
			return nil, fmt.Errorf("dial fallback %s: %w", config.FallbackURL, err)
		}
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst == 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return NewClient(main, fallback, chainID, circuitbreaker.Config{
		Timeout:                cbConfig.Timeout,
		MaxConcurrentRequests:  cbConfig.MaxConcurrentRequests,
		RequestVolumeThreshold: cbConfig.RequestVolumeThreshold,
		SleepWindow:            cbConfig.SleepWindow,
		ErrorPercentThreshold:  cbConfig.ErrorPercentThreshold,
	}, limiter), nil
}

func (c *ClientWithFallback) Close() {
	for _, u := range c.upstreams {
		u.client.Close()
	}
}

func (c *ClientWithFallback) IsConnected() bool {
	c.isConnectedLock.RLock()
	defer c.isConnectedLock.RUnlock()
	return c.isConnected
}

func (c *ClientWithFallback) LastCheckedAt() int64 {
	c.isConnectedLock.RLock()
	defer c.isConnectedLock.RUnlock()
	return c.lastCheckedAt
}

func isVMError(err error) bool {
	if strings.HasPrefix(err.Error(), "execution reverted") {
		return true
	}
	for _, vmError := range vmErrors {
		if errors.Is(err, vmError) {
			return true
		}
	}
	return false
}

// isLedgerError reports errors that carry a ledger answer rather than a
// transport failure.
func isLedgerError(err error) bool {
	if errors.Is(err, ethereum.NotFound) || isVMError(err) {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

func (c *ClientWithFallback) setIsConnected(value bool) {
	c.isConnectedLock.Lock()
	c.lastCheckedAt = time.Now().Unix()
	changed := false
	if !value {
		c.consecutiveFailureCount++
		if c.consecutiveFailureCount > 1 && c.isConnected {
			c.isConnected = false
			changed = true
		}
	} else {
		c.consecutiveFailureCount = 0
		if !c.isConnected {
			c.isConnected = true
			changed = true
		}
	}
	notifier := c.Notifier
	c.isConnectedLock.Unlock()

	if changed {
		logutils.ZapLogger().Info("ledger connection changed",
			zap.Uint64("chainID", c.ChainID), zap.Bool("connected", value))
		if notifier != nil {
			notifier(c.ChainID, value)
		}
	}
}

func makeCall[T any](ctx context.Context, c *ClientWithFallback, method string, call func(*upstream) (T, error)) (T, error) {
	var zero T
	metrics.CountRPCCall(method)

	if len(c.upstreams) == 0 {
		return zero, ErrNoUpstream
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, err
		}
	}

	cmd := circuitbreaker.NewCommand(ctx, nil)
	for _, u := range c.upstreams {
		u := u
		cmd.Add(circuitbreaker.NewFunctor(func() ([]any, error) {
			res, err := call(u)
			if err != nil {
				if isLedgerError(err) {
					return []any{res, err}, nil
				}
				return nil, err
			}
			return []any{res, nil}, nil
		}, u.circuitName))
	}

	result := c.cb.Execute(cmd)
	if result.Error() != nil {
		c.setIsConnected(false)
		logutils.ZapLogger().Debug("ledger call failed",
			zap.String("method", method), zap.Error(result.Error()))
		return zero, result.Error()
	}
	c.setIsConnected(true)

	res := result.Result()
	if ledgerErr, ok := res[1].(error); ok && ledgerErr != nil {
		return zero, ledgerErr
	}
	value, _ := res[0].(T)
	return value, nil
}

func (c *ClientWithFallback) ChainIDAt(ctx context.Context) (*big.Int, error) {
	return makeCall(ctx, c, "eth_chainId", func(u *upstream) (*big.Int, error) {
		return u.client.ChainID(ctx)
	})
}

func (c *ClientWithFallback) BlockNumber(ctx context.Context) (uint64, error) {
	return makeCall(ctx, c, "eth_blockNumber", func(u *upstream) (uint64, error) {
		return u.client.BlockNumber(ctx)
	})
}

func (c *ClientWithFallback) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return makeCall(ctx, c, "eth_getBlockByNumber", func(u *upstream) (*types.Header, error) {
		return u.client.HeaderByNumber(ctx, number)
	})
}

func (c *ClientWithFallback) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return makeCall(ctx, c, "eth_getTransactionReceipt", func(u *upstream) (*types.Receipt, error) {
		return u.client.TransactionReceipt(ctx, txHash)
	})
}

func (c *ClientWithFallback) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return makeCall(ctx, c, "eth_getCode", func(u *upstream) ([]byte, error) {
		return u.client.CodeAt(ctx, account, blockNumber)
	})
}

func (c *ClientWithFallback) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return makeCall(ctx, c, "eth_getCode", func(u *upstream) ([]byte, error) {
		return u.client.PendingCodeAt(ctx, account)
	})
}

func (c *ClientWithFallback) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return makeCall(ctx, c, "eth_getTransactionCount", func(u *upstream) (uint64, error) {
		return u.client.PendingNonceAt(ctx, account)
	})
}

func (c *ClientWithFallback) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return makeCall(ctx, c, "eth_call", func(u *upstream) ([]byte, error) {
		return u.client.CallContract(ctx, msg, blockNumber)
	})
}

func (c *ClientWithFallback) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return makeCall(ctx, c, "eth_gasPrice", func(u *upstream) (*big.Int, error) {
		return u.client.SuggestGasPrice(ctx)
	})
}

func (c *ClientWithFallback) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return makeCall(ctx, c, "eth_maxPriorityFeePerGas", func(u *upstream) (*big.Int, error) {
		return u.client.SuggestGasTipCap(ctx)
	})
}

func (c *ClientWithFallback) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return makeCall(ctx, c, "eth_estimateGas", func(u *upstream) (uint64, error) {
		return u.client.EstimateGas(ctx, msg)
	})
}

func (c *ClientWithFallback) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := makeCall(ctx, c, "eth_sendRawTransaction", func(u *upstream) (struct{}, error) {
		return struct{}{}, u.client.SendTransaction(ctx, tx)
	})
	return err
}

func (c *ClientWithFallback) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return makeCall(ctx, c, "eth_getLogs", func(u *upstream) ([]types.Log, error) {
		return u.client.FilterLogs(ctx, q)
	})
}

// SubscribeFilterLogs only uses the main endpoint, subscriptions are not
// retried on the fallback.
func (c *ClientWithFallback) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	metrics.CountRPCCall("eth_subscribe")
	if len(c.upstreams) == 0 {
		return nil, ErrNoUpstream
	}
	return c.upstreams[0].client.SubscribeFilterLogs(ctx, q, ch)
}

func (c *ClientWithFallback) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	_, err := makeCall(ctx, c, method, func(u *upstream) (struct{}, error) {
		return struct{}{}, u.rpcClient.CallContext(ctx, result, method, args...)
	})
	return err
}

func (c *ClientWithFallback) ToBigInt() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}
