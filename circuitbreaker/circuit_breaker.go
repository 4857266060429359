package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/afex/hystrix-go/hystrix"
)

type FallbackFunc func() ([]any, error)

type FunctorCallStatus struct {
	Name      string
	Timestamp time.Time
	Err       error
}

type CommandResult struct {
	res                 []any
	err                 error
	functorCallStatuses []FunctorCallStatus
	cancelled           bool
}

func (cr CommandResult) Result() []any {
	return cr.res
}

func (cr CommandResult) Error() error {
	return cr.err
}

func (cr CommandResult) Cancelled() bool {
	return cr.cancelled
}

func (cr CommandResult) FunctorCallStatuses() []FunctorCallStatus {
	return cr.functorCallStatuses
}

func (cr *CommandResult) addCallStatus(circuitName string, err error) {
	cr.functorCallStatuses = append(cr.functorCallStatuses, FunctorCallStatus{
		Name:      circuitName,
		Timestamp: time.Now(),
		Err:       err,
	})
}

// Command is an ordered list of functors; the first one to succeed wins.
type Command struct {
	ctx      context.Context
	functors []*Functor
	cancel   bool
}

func NewCommand(ctx context.Context, functors []*Functor) *Command {
	return &Command{
		ctx:      ctx,
		functors: functors,
	}
}

func (cmd *Command) Add(ftor *Functor) {
	cmd.functors = append(cmd.functors, ftor)
}

func (cmd *Command) IsEmpty() bool {
	return len(cmd.functors) == 0
}

func (cmd *Command) Cancel() {
	cmd.cancel = true
}

type Config struct {
	Timeout                int
	MaxConcurrentRequests  int
	RequestVolumeThreshold int
	SleepWindow            int
	ErrorPercentThreshold  int
}

type CircuitBreaker struct {
	config Config
}

func NewCircuitBreaker(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
	}
}

type Functor struct {
	exec        FallbackFunc
	circuitName string
}

func NewFunctor(exec FallbackFunc, circuitName string) *Functor {
	return &Functor{
		exec:        exec,
		circuitName: circuitName,
	}
}

func (cb *CircuitBreaker) configure(circuitName string) {
	if hystrix.GetCircuitSettings()[circuitName] != nil {
		return
	}
	hystrix.ConfigureCommand(circuitName, hystrix.CommandConfig{
		Timeout:                cb.config.Timeout,
		MaxConcurrentRequests:  cb.config.MaxConcurrentRequests,
		RequestVolumeThreshold: cb.config.RequestVolumeThreshold,
		SleepWindow:            cb.config.SleepWindow,
		ErrorPercentThreshold:  cb.config.ErrorPercentThreshold,
	})
}

// Execute runs the command's functors in order, each in its own circuit, and
// stops at the first success. The last functor is always tried even when its
// circuit is open, so a command never fails without touching a provider.
// This is a blocking function.
func (cb *CircuitBreaker) Execute(cmd *Command) CommandResult {
	if cmd == nil || cmd.IsEmpty() {
		return CommandResult{err: fmt.Errorf("command is nil or empty")}
	}

	var result CommandResult
	ctx := cmd.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	for i, f := range cmd.functors {
		if cmd.cancel || ctx.Err() != nil {
			result.cancelled = true
			break
		}

		cb.configure(f.circuitName)

		var err error
		if i == len(cmd.functors)-1 && IsCircuitOpen(f.circuitName) {
			var res []any
			res, err = f.exec()
			if err == nil {
				result.res = res
			}
		} else {
			err = hystrix.DoC(ctx, f.circuitName, func(ctx context.Context) error {
				res, err := f.exec()
				// Write to result only if success
				if err == nil {
					result.res = res
				}
				return err
			}, nil)
		}
		result.addCallStatus(f.circuitName, err)

		if err == nil {
			result.err = nil
			break
		}

		// Accumulate errors
		if result.err != nil {
			result.err = fmt.Errorf("%w, %s.error: %w", result.err, f.circuitName, err)
		} else {
			result.err = fmt.Errorf("%s.error: %w", f.circuitName, err)
		}
	}

	if result.cancelled && result.err == nil {
		result.err = ctx.Err()
	}

	return result
}

func CircuitExists(circuitName string) bool {
	_, ok := hystrix.GetCircuitSettings()[circuitName]
	return ok
}

func IsCircuitOpen(circuitName string) bool {
	circuit, _, _ := hystrix.GetCircuit(circuitName)
	return circuit != nil && circuit.IsOpen()
}
