package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/status-im/status-escrow/agreement"
	"github.com/status-im/status-escrow/async"
	"github.com/status-im/status-escrow/logutils"
	"github.com/status-im/status-escrow/metrics"
)

var (
	ErrNotLoaded        = errors.New("agreement snapshot is not loaded")
	ErrUnauthorized     = errors.New("viewer is not allowed to perform this action")
	ErrActionInProgress = errors.New("another action is in progress")
	ErrWaitAbandoned    = errors.New("stopped waiting for finality, the request may still complete")

	errStaleRead = errors.New("read does not reflect the finalized action yet")
)

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

// Result reports one action. Err is set for failed and abandoned outcomes.
// RefreshErr is set when the action is confirmed but the snapshot could not be
// refreshed afterwards; the action itself must not be retried then.
type Result struct {
	ID       string              `json:"id"`
	Action   agreement.Action    `json:"action"`
	TxHash   common.Hash         `json:"txHash"`
	Outcome  Outcome             `json:"outcome"`
	Reason   string              `json:"reason,omitempty"`
	Snapshot *agreement.Snapshot `json:"snapshot,omitempty"`

	Err        error `json:"-"`
	RefreshErr error `json:"-"`

	Error        string `json:"error,omitempty"`
	RefreshError string `json:"refreshError,omitempty"`
}

func (r *Result) setErrors(err, refreshErr error) {
	r.Err = err
	r.RefreshErr = refreshErr
	if err != nil {
		r.Error = err.Error()
	}
	if refreshErr != nil {
		r.RefreshError = refreshErr.Error()
	}
}

type CoordinatorConfig struct {
	RefreshRetries  uint64
	RefreshInterval time.Duration
}

// Coordinator runs state changing actions against one binding: submit, wait
// for finality, refresh the snapshot. At most one action is in flight.
type Coordinator struct {
	binding *agreement.Binding
	cache   *agreement.SnapshotCache
	config  CoordinatorConfig

	inFlight atomic.Bool
	retired  atomic.Bool
	group    *async.Group

	outcomeFeed  event.Feed
	snapshotFeed event.Feed
	logger       *zap.Logger
}

func NewCoordinator(binding *agreement.Binding, config CoordinatorConfig) *Coordinator {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 500 * time.Millisecond
	}
	return &Coordinator{
		binding: binding,
		cache:   agreement.NewSnapshotCache(),
		config:  config,
		group:   async.NewGroup(context.Background()),
		logger:  logutils.ZapLogger().Named("coordinator").With(zap.Stringer("agreement", binding.Address())),
	}
}

func (c *Coordinator) Binding() *agreement.Binding {
	return c.binding
}

// Snapshot returns a copy of the cached snapshot, nil until loaded.
func (c *Coordinator) Snapshot() *agreement.Snapshot {
	return c.cache.Get()
}

// Role is recomputed from the cached snapshot on every call.
func (c *Coordinator) Role() agreement.Role {
	return agreement.ResolveRole(c.binding.Session().Address(), c.cache.Get())
}

func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Retire takes the action guard for good so no new action can start. It
// returns false while an action is in flight.
func (c *Coordinator) Retire() bool {
	if !c.inFlight.CompareAndSwap(false, true) {
		return false
	}
	c.retired.Store(true)
	return true
}

func (c *Coordinator) SubscribeOutcomes(ch chan<- Result) event.Subscription {
	return c.outcomeFeed.Subscribe(ch)
}

func (c *Coordinator) SubscribeSnapshots(ch chan<- *agreement.Snapshot) event.Subscription {
	return c.snapshotFeed.Subscribe(ch)
}

// Stop abandons background finality tracking and waits for it to return.
func (c *Coordinator) Stop() {
	c.group.Stop()
	c.group.Wait()
}

// Load reads the agreement and caches the result. A failed read leaves the
// cached snapshot untouched. A read overtaken by a newer one returns the
// newer cached snapshot.
func (c *Coordinator) Load(ctx context.Context) (*agreement.Snapshot, error) {
	snapshot, err := c.binding.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Update(snapshot); err != nil {
		metrics.RecordRead("stale")
		c.logger.Debug("discarding stale read", zap.Uint64("seq", snapshot.Seq()))
		return c.cache.Get(), nil
	}
	c.snapshotFeed.Send(snapshot.Clone())
	return snapshot, nil
}

// Perform runs action to completion. If ctx ends before finality the result is
// pending and ErrWaitAbandoned is returned; tracking goes on in the background,
// the guard stays held and the final outcome is published to subscribers.
func (c *Coordinator) Perform(ctx context.Context, action agreement.Action) (*Result, error) {
	snapshot := c.cache.Get()
	if snapshot == nil {
		return nil, ErrNotLoaded
	}

	role := agreement.ResolveRole(c.binding.Session().Address(), snapshot)
	if !agreement.CanPerform(role, action) {
		metrics.RecordAction(action.String(), "denied")
		return nil, fmt.Errorf("%w: %s cannot %s", ErrUnauthorized, role, action)
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		if c.retired.Load() {
			return nil, ErrNotBound
		}
		return nil, ErrActionInProgress
	}

	pending, err := c.binding.Write(ctx, action)
	if err != nil {
		c.inFlight.Store(false)
		result := &Result{
			ID:       uuid.NewString(),
			Action:   action,
			Outcome:  OutcomeFailed,
			Snapshot: snapshot,
		}
		var revert *agreement.RemoteRevert
		if errors.As(err, &revert) {
			result.Reason = revert.Reason
		} else {
			result.Reason = err.Error()
		}
		result.setErrors(err, nil)
		c.publish(result)
		return result, err
	}

	c.logger.Info("action submitted",
		zap.String("id", pending.ID),
		zap.String("action", action.String()),
		zap.Stringer("hash", pending.Hash))

	done := make(chan *Result, 1)
	c.group.Add(func(groupCtx context.Context) error {
		result := c.finalize(groupCtx, pending)
		c.inFlight.Store(false)
		done <- result
		c.publish(result)
		return nil
	})

	select {
	case result := <-done:
		return result, result.Err
	case <-ctx.Done():
		c.logger.Info("wait abandoned", zap.String("id", pending.ID), zap.Error(ctx.Err()))
		return &Result{
			ID:       pending.ID,
			Action:   action,
			TxHash:   pending.Hash,
			Outcome:  OutcomePending,
			Snapshot: c.cache.Get(),
			Err:      ErrWaitAbandoned,
			Error:    ErrWaitAbandoned.Error(),
		}, ErrWaitAbandoned
	}
}

func (c *Coordinator) finalize(ctx context.Context, pending *agreement.PendingTx) *Result {
	result := &Result{
		ID:     pending.ID,
		Action: pending.Action,
		TxHash: pending.Hash,
	}

	receipt, err := c.binding.AwaitFinality(ctx, pending)
	if err != nil {
		var revert *agreement.RemoteRevert
		if errors.As(err, &revert) {
			result.Outcome = OutcomeFailed
			result.Reason = revert.Reason
			result.setErrors(err, nil)
		} else {
			result.Outcome = OutcomePending
			result.setErrors(fmt.Errorf("%w: %w", ErrWaitAbandoned, err), nil)
		}
		result.Snapshot = c.cache.Get()
		return result
	}

	c.logger.Info("action final", zap.String("id", pending.ID), zap.Stringer("block", receipt.BlockNumber))
	result.Outcome = OutcomeConfirmed

	snapshot, refreshErr := c.refreshAfter(ctx, pending.Action)
	if refreshErr != nil {
		c.logger.Warn("refresh after action failed", zap.String("id", pending.ID), zap.Error(refreshErr))
		snapshot = c.cache.Get()
	}
	result.Snapshot = snapshot
	result.setErrors(nil, refreshErr)
	return result
}

// refreshAfter reads until the snapshot reflects action. Reads that fail are
// not retried, reads that lag behind are.
func (c *Coordinator) refreshAfter(ctx context.Context, action agreement.Action) (*agreement.Snapshot, error) {
	var snapshot *agreement.Snapshot
	operation := func() error {
		s, err := c.binding.Read(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if s.Status < action.TargetStatus() {
			metrics.RecordRead("stale")
			return errStaleRead
		}
		if err := c.cache.Update(s); err != nil {
			metrics.RecordRead("stale")
			return err
		}
		snapshot = s
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RefreshInterval
	policy.MaxElapsedTime = 0
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.config.RefreshRetries), ctx))
	if err != nil {
		return nil, err
	}
	c.snapshotFeed.Send(snapshot.Clone())
	return snapshot, nil
}

func (c *Coordinator) publish(result *Result) {
	metrics.RecordAction(result.Action.String(), string(result.Outcome))
	c.outcomeFeed.Send(*result)
}
