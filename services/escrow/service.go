package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/status-im/status-escrow/account"
	"github.com/status-im/status-escrow/agreement"
	gocommon "github.com/status-im/status-escrow/common"
	agreementcontract "github.com/status-im/status-escrow/contracts/agreement"
	"github.com/status-im/status-escrow/logutils"
	"github.com/status-im/status-escrow/metrics"
	"github.com/status-im/status-escrow/params"
	"github.com/status-im/status-escrow/rpc/chain"
	"github.com/status-im/status-escrow/signal"
	"github.com/status-im/status-escrow/transactions"
)

var ErrNotBound = errors.New("no agreement is bound")

// NewService wires the escrow client for one ledger. backend is usually a
// *chain.ClientWithFallback; its connectivity changes are forwarded as signals.
func NewService(config *params.Config, manager *account.Manager, backend agreement.Backend) (*Service, error) {
	if gocommon.IsNil(backend) {
		return nil, agreement.ErrNoBackend
	}
	feed := &event.Feed{}

	if client, ok := backend.(*chain.ClientWithFallback); ok {
		client.Notifier = signal.SendLedgerConnection
	}

	var artifact *agreementcontract.Artifact
	if config.AgreementArtifact != "" {
		loaded, err := agreementcontract.LoadArtifact(config.AgreementArtifact)
		if err != nil {
			return nil, err
		}
		artifact = loaded
	}

	s := &Service{
		config:   config,
		manager:  manager,
		backend:  backend,
		artifact: artifact,
		feed:     feed,
		tracker:  transactions.NewTransactionManager(feed, config.Tx.PollInterval.Duration(), config.Tx.FinalityTimeout.Duration()),
		logger:   logutils.ZapLogger().Named("escrow"),
	}
	if config.MetricsConfig.Enabled {
		s.metricsServer = metrics.NewMetricsServer(config.MetricsConfig.Port, prom.DefaultGatherer)
	}
	return s, nil
}

// Service owns the session, the current coordinator and the pending tracker.
type Service struct {
	config   *params.Config
	manager  *account.Manager
	backend  agreement.Backend
	artifact *agreementcontract.Artifact
	feed     *event.Feed
	tracker  *transactions.TransactionManager

	mu          sync.RWMutex
	coordinator *Coordinator
	outcomeSub  event.Subscription

	started       bool
	quit          chan struct{}
	wg            sync.WaitGroup
	metricsServer *metrics.Server
	logger        *zap.Logger
}

// Start forwards tracker events as signals and starts the metrics exporter.
func (s *Service) Start() error {
	if s.started {
		return nil
	}
	s.started = true
	s.quit = make(chan struct{})

	events := make(chan transactions.Event, 10)
	sub := s.feed.Subscribe(events)
	s.wg.Add(1)
	go func() {
		defer gocommon.LogOnPanic()
		defer s.wg.Done()
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				signal.SendPendingUpdate(ev)
			case err := <-sub.Err():
				if err != nil {
					s.logger.Error("pending subscription failed", zap.Error(err))
				}
				return
			case <-s.quit:
				return
			}
		}
	}()

	if s.metricsServer != nil {
		go s.metricsServer.Listen()
	}
	return nil
}

// Stop stops background work. Pending finality waits are abandoned.
func (s *Service) Stop() error {
	var err error
	s.mu.Lock()
	if s.coordinator != nil {
		s.coordinator.Stop()
		s.outcomeSub.Unsubscribe()
		s.coordinator = nil
	}
	s.mu.Unlock()

	if s.started {
		close(s.quit)
		s.started = false
	}
	s.wg.Wait()
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, s.metricsServer.Stop(ctx))
	}
	if client, ok := s.backend.(*chain.ClientWithFallback); ok {
		client.Close()
	}
	return err
}

func (s *Service) Tracker() *transactions.TransactionManager {
	return s.tracker
}

// Connect asks the identity provider for an account.
func (s *Service) Connect(ctx context.Context) (*account.Session, error) {
	session, err := s.manager.Connect(ctx)
	if err != nil {
		return nil, err
	}
	signal.SendSessionConnected(session.Address(), session.ChainID().Uint64())
	return session, nil
}

// Bind replaces the current agreement and loads its snapshot. A failed bind
// keeps the previous coordinator.
func (s *Service) Bind(ctx context.Context, address string) (*agreement.Snapshot, error) {
	session, err := s.manager.Session()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", agreement.ErrNoSession, err)
	}
	binding, err := agreement.Bind(address, session, s.backend, agreement.WithTracker(s.tracker))
	if err != nil {
		return nil, err
	}
	return s.install(ctx, binding)
}

// install loads binding and only then replaces the current coordinator, so a
// failed read leaves the previous agreement and its snapshot in place.
func (s *Service) install(ctx context.Context, binding *agreement.Binding) (*agreement.Snapshot, error) {
	if current, err := s.current(); err == nil && current.InFlight() {
		return nil, ErrActionInProgress
	}

	coordinator := s.newCoordinator(binding)
	snapshot, err := coordinator.Load(ctx)
	if err != nil {
		coordinator.Stop()
		return nil, err
	}

	s.mu.Lock()
	previous, previousSub := s.coordinator, s.outcomeSub
	if previous != nil && !previous.Retire() {
		s.mu.Unlock()
		coordinator.Stop()
		return nil, ErrActionInProgress
	}
	s.coordinator = coordinator
	s.outcomeSub = s.forwardOutcomes(coordinator)
	s.mu.Unlock()

	if previous != nil {
		previous.Stop()
		previousSub.Unsubscribe()
	}
	signal.SendSnapshotChanged(snapshot)
	return snapshot, nil
}

// forwardOutcomes signals every outcome of coordinator, including the final
// outcome of an action whose caller stopped waiting.
func (s *Service) forwardOutcomes(coordinator *Coordinator) event.Subscription {
	outcomes := make(chan Result, 10)
	sub := coordinator.SubscribeOutcomes(outcomes)
	s.wg.Add(1)
	go func() {
		defer gocommon.LogOnPanic()
		defer s.wg.Done()
		for {
			select {
			case result := <-outcomes:
				signal.SendActionOutcome(result)
				if result.Outcome == OutcomeConfirmed && result.Snapshot != nil {
					signal.SendSnapshotChanged(result.Snapshot)
				}
			case <-sub.Err():
				return
			}
		}
	}()
	return sub
}

func (s *Service) newCoordinator(binding *agreement.Binding) *Coordinator {
	return NewCoordinator(binding, CoordinatorConfig{
		RefreshRetries:  s.config.Tx.RefreshRetries,
		RefreshInterval: s.config.Tx.RefreshInterval.Duration(),
	})
}

func (s *Service) current() (*Coordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.coordinator == nil {
		return nil, ErrNotBound
	}
	return s.coordinator, nil
}

func (s *Service) load(ctx context.Context, coordinator *Coordinator) (*agreement.Snapshot, error) {
	snapshot, err := coordinator.Load(ctx)
	if err != nil {
		return nil, err
	}
	signal.SendSnapshotChanged(snapshot)
	return snapshot, nil
}

// Refresh re-reads the bound agreement.
func (s *Service) Refresh(ctx context.Context) (*agreement.Snapshot, error) {
	coordinator, err := s.current()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, coordinator)
}

func (s *Service) Snapshot() (*agreement.Snapshot, error) {
	coordinator, err := s.current()
	if err != nil {
		return nil, err
	}
	snapshot := coordinator.Snapshot()
	if snapshot == nil {
		return nil, ErrNotLoaded
	}
	return snapshot, nil
}

func (s *Service) Role() (agreement.Role, error) {
	coordinator, err := s.current()
	if err != nil {
		return agreement.RoleUnknown, err
	}
	return coordinator.Role(), nil
}

// Perform runs action on the bound agreement. Outcomes are signalled as they
// are published by the coordinator.
func (s *Service) Perform(ctx context.Context, action agreement.Action) (*Result, error) {
	coordinator, err := s.current()
	if err != nil {
		return nil, err
	}
	return coordinator.Perform(ctx, action)
}

func (s *Service) PendingTransactions() []*transactions.PendingTransaction {
	return s.tracker.GetAllPending()
}

// CreateAgreement deploys a new agreement with the session as client, waits
// for it to be final and binds it.
func (s *Service) CreateAgreement(ctx context.Context, freelancer, text, amountEther string) (common.Address, *agreement.Snapshot, error) {
	session, err := s.manager.Session()
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %w", agreement.ErrNoSession, err)
	}
	if s.artifact == nil {
		return common.Address{}, nil, agreement.ErrBytecodeMissing
	}
	if freelancer == "" || text == "" || amountEther == "" {
		return common.Address{}, nil, agreement.ErrMissingField
	}
	amount, err := agreement.ParseEther(amountEther)
	if err != nil {
		return common.Address{}, nil, err
	}

	address, pending, err := agreement.Deploy(ctx, session, s.backend, s.artifact, agreement.DeployRequest{
		Freelancer: freelancer,
		Text:       text,
		Amount:     amount,
	}, s.tracker)
	if err != nil {
		return common.Address{}, nil, err
	}
	signal.SendAgreementCreated(address, pending.Hash)

	binding, err := agreement.Bind(address.Hex(), session, s.backend, agreement.WithTracker(s.tracker))
	if err != nil {
		return address, nil, err
	}
	if _, err := binding.AwaitFinality(ctx, pending); err != nil {
		return address, nil, err
	}
	snapshot, err := s.install(ctx, binding)
	return address, snapshot, err
}
