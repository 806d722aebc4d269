package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alcrishub/postman-runtime/internal/prepare"
	"github.com/alcrishub/postman-runtime/internal/types"
)

// Run-level errors reported through OnDone
var (
	ErrCancelled     = errors.New("run cancelled")
	ErrInvalidConfig = errors.New("invalid run configuration")
	ErrFault         = errors.New("run fault")
)

// Transport sends a prepared request
type Transport interface {
	Send(ctx context.Context, req *prepare.PreparedRequest) (*types.Response, error)
}

// Preparer materializes a collection item
type Preparer interface {
	Prepare(ctx context.Context, item types.CollectionItem) (*prepare.PreparedRequest, error)
}

// State of the coordinator
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePreparing
	StateDispatching
	StateSettling
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePreparing:
		return "preparing"
	case StateDispatching:
		return "dispatching"
	case StateSettling:
		return "settling"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ExecutionRecord is the outcome of one item
type ExecutionRecord struct {
	Index        int
	Name         string
	RequestError error
	Request      *prepare.PreparedRequest
	Response     *types.Response
	Trace        *types.ExecutionTrace
}

// RunResult is the outcome of a run, read-only once Run returns
type RunResult struct {
	ID              string
	StartedAt       time.Time
	Duration        time.Duration
	CompletionError error
	Records         []ExecutionRecord
}

// Failed counts records with a request error
func (r *RunResult) Failed() int {
	n := 0
	for _, rec := range r.Records {
		if rec.RequestError != nil {
			n++
		}
	}
	return n
}

// Coordinator runs items one at a time. A Coordinator serves a single run.
type Coordinator struct {
	preparer  Preparer
	transport Transport
	logger    *zap.Logger
	id        string

	state    atomic.Int32
	used     atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRunID overrides the generated run id
func WithRunID(id string) Option {
	return func(c *Coordinator) { c.id = id }
}

// New creates a coordinator. Missing collaborators are reported when the run starts.
func New(preparer Preparer, transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		preparer:  preparer,
		transport: transport,
		logger:    zap.NewNop(),
		id:        uuid.NewString(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("runner").With(zap.String("run_id", c.id))
	return c
}

// ID returns the run id
func (c *Coordinator) ID() string { return c.id }

// State returns the current lifecycle state
func (c *Coordinator) State() State { return State(c.state.Load()) }

func (c *Coordinator) setState(s State) { c.state.Store(int32(s)) }

// Stop asks the run to finish after the current item. It is safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// RunItem runs a single item; it is reported with index 0
func (c *Coordinator) RunItem(ctx context.Context, item types.CollectionItem, handler Handler) *RunResult {
	return c.Run(ctx, []types.CollectionItem{item}, handler)
}

// Run executes items in order and returns once OnDone has been called
func (c *Coordinator) Run(ctx context.Context, items []types.CollectionItem, handler Handler) *RunResult {
	if handler == nil {
		handler = HandlerFuncs{}
	}
	result := &RunResult{ID: c.id, StartedAt: time.Now()}

	if !c.used.CompareAndSwap(false, true) {
		handler.OnStart()
		result.CompletionError = fmt.Errorf("%w: coordinator already ran", ErrInvalidConfig)
		handler.OnDone(result.CompletionError)
		return result
	}

	c.setState(StateRunning)
	c.logger.Info("run started", zap.Int("items", len(items)))
	handler.OnStart()

	result.CompletionError = c.validate()
	if result.CompletionError == nil {
		result.Records = make([]ExecutionRecord, 0, len(items))
		for i, item := range items {
			if err := c.cancelled(ctx); err != nil {
				result.CompletionError = err
				c.logger.Info("run cancelled", zap.Int("next_item", i))
				break
			}
			if err := c.runItem(ctx, i, item, handler, result); err != nil {
				result.CompletionError = err
				c.logger.Error("run halted", zap.Int("item", i), zap.Error(err))
				break
			}
		}
		// a stop received during the last item still ends the run cancelled
		if result.CompletionError == nil {
			if err := c.cancelled(ctx); err != nil {
				result.CompletionError = err
				c.logger.Info("run cancelled after last item")
			}
		}
	}

	result.Duration = time.Since(result.StartedAt)
	c.setState(StateCompleted)
	c.logger.Info("run completed",
		zap.Int("items", len(result.Records)),
		zap.Int("failed", result.Failed()),
		zap.Duration("duration", result.Duration),
		zap.Error(result.CompletionError))
	handler.OnDone(result.CompletionError)
	return result
}

func (c *Coordinator) validate() error {
	switch {
	case c.preparer == nil:
		return fmt.Errorf("%w: no preparer", ErrInvalidConfig)
	case c.transport == nil:
		return fmt.Errorf("%w: no transport", ErrInvalidConfig)
	}
	return nil
}

func (c *Coordinator) cancelled(ctx context.Context) error {
	select {
	case <-c.stop:
		return ErrCancelled
	default:
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// runItem prepares, dispatches and settles one item. The returned error is a
// run-level fault; item failures are carried in the record.
func (c *Coordinator) runItem(ctx context.Context, index int, item types.CollectionItem, handler Handler, result *RunResult) (fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = fmt.Errorf("%w: panic in item %d: %v", ErrFault, index, r)
		}
	}()

	rec := ExecutionRecord{Index: index, Name: item.Name}

	c.setState(StatePreparing)
	req, err := c.preparer.Prepare(ctx, item)
	if err != nil {
		rec.RequestError = err
		c.logger.Warn("item preparation failed", zap.Int("item", index), zap.String("name", item.Name), zap.Error(err))
	} else {
		rec.Request = req

		c.setState(StateDispatching)
		// a stop or cancellation must not interrupt the in-flight call
		resp, err := c.transport.Send(context.WithoutCancel(ctx), req)
		if err != nil {
			rec.RequestError = err
			c.logger.Warn("item request failed", zap.Int("item", index), zap.String("name", item.Name), zap.Error(err))
		} else {
			rec.Response = resp
			if resp != nil {
				rec.Trace = resp.Trace
			}
			c.logger.Debug("item completed",
				zap.Int("item", index),
				zap.String("name", item.Name),
				zap.Int("status", responseCode(resp)))
		}
	}

	c.setState(StateSettling)
	result.Records = append(result.Records, rec)
	handler.OnItem(ItemEvent{
		Err:      rec.RequestError,
		Index:    rec.Index,
		Name:     rec.Name,
		Response: rec.Response,
		Request:  rec.Request,
		Trace:    rec.Trace,
	})
	c.setState(StateRunning)
	return nil
}

func responseCode(resp *types.Response) int {
	if resp == nil {
		return 0
	}
	return resp.Code
}
