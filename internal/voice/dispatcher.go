package voice

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suarakita/server/domain/entities"
)

// DefaultCallTimeout bounds one command operation, ledger round-trips
// included. A hung external call synthesizes a timed-out result instead of
// leaving the call pending forever.
const DefaultCallTimeout = 30 * time.Second

// Operation is a single named command the model can invoke. Execute never
// returns a Go error; failures travel inside the CommandResult so the model
// can relay them conversationally.
type Operation interface {
	Name() string
	Execute(ctx context.Context, args map[string]interface{}) entities.CommandResult
}

// Sink receives dispatch results. The connection manager implements it by
// writing function output frames; both methods must tolerate the connection
// being gone (results of operations that outlive the session are discarded).
type Sink interface {
	SendFunctionOutput(callID, output string) error
	RequestResponse() error
}

type pendingCall struct {
	name string
	args strings.Builder
}

// Dispatcher reassembles streamed function-call argument fragments and
// invokes the matching operation exactly once per call id. Distinct call ids
// dispatch concurrently; fragments within one call id are append-only and
// order-preserving.
type Dispatcher struct {
	mu        sync.Mutex
	pending   map[string]*pendingCall
	completed map[string]struct{}

	ops     map[string]Operation
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given operations. A timeout
// of zero selects DefaultCallTimeout.
func NewDispatcher(sink Sink, ops []Operation, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	byName := make(map[string]Operation, len(ops))
	for _, op := range ops {
		byName[op.Name()] = op
	}
	return &Dispatcher{
		pending:   make(map[string]*pendingCall),
		completed: make(map[string]struct{}),
		ops:       byName,
		sink:      sink,
		timeout:   timeout,
		logger:    logger,
	}
}

// AppendFragment accumulates one arguments-delta fragment. The first
// fragment for an unseen call id creates the entry; a fragment arriving
// after the call resolved starts a fresh logical call under the same id.
func (d *Dispatcher) AppendFragment(callID, name, delta string) {
	if callID == "" {
		d.logger.Warn("Discarding function call fragment without call id")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.pending[callID]
	if !ok {
		entry = &pendingCall{}
		d.pending[callID] = entry
		delete(d.completed, callID)
	}
	if entry.name == "" && name != "" {
		entry.name = name
	}
	entry.args.WriteString(delta)
}

// CompleteCall resolves a call id and dispatches its operation. The buffered
// fragments win over the event's full-arguments override when both exist. A
// done event for an already-resolved call id is a protocol error: logged and
// discarded, never re-dispatched.
func (d *Dispatcher) CompleteCall(callID, name, override string) {
	if callID == "" {
		d.logger.Warn("Discarding function call completion without call id")
		return
	}

	d.mu.Lock()
	entry, ok := d.pending[callID]
	if !ok {
		if _, dup := d.completed[callID]; dup {
			d.mu.Unlock()
			d.logger.Warn("Duplicate completion for resolved call", zap.String("callID", callID))
			return
		}
	} else {
		delete(d.pending, callID)
	}
	d.completed[callID] = struct{}{}
	d.mu.Unlock()

	argsText := override
	if entry != nil {
		if buffered := entry.args.String(); buffered != "" {
			argsText = buffered
		}
		if entry.name != "" {
			name = entry.name
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(callID, d.run(name, argsText))
	}()
}

// Wait blocks until every in-flight dispatch has delivered its result. Used
// by shutdown paths and tests; a disconnect does not wait.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(name, argsText string) entities.CommandResult {
	if argsText == "" {
		argsText = "{}"
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsText), &args); err != nil {
		d.logger.Warn("Malformed function call arguments",
			zap.String("function", name),
			zap.Error(err))
		return entities.Failure("could not parse function arguments")
	}

	op, ok := d.ops[name]
	if !ok {
		d.logger.Warn("Model requested unknown function", zap.String("function", name))
		return entities.Failure("Function not implemented")
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	done := make(chan entities.CommandResult, 1)
	go func() {
		done <- op.Execute(ctx, args)
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		d.logger.Error("Command operation timed out",
			zap.String("function", name),
			zap.Duration("timeout", d.timeout))
		return entities.Failure("operation timed out")
	}
}

func (d *Dispatcher) deliver(callID string, result entities.CommandResult) {
	if err := d.sink.SendFunctionOutput(callID, result.Output()); err != nil {
		// The connection may already be closed; the result is discarded.
		d.logger.Debug("Dropping function output", zap.String("callID", callID), zap.Error(err))
		return
	}
	if err := d.sink.RequestResponse(); err != nil {
		d.logger.Debug("Failed to request response turn", zap.String("callID", callID), zap.Error(err))
	}
}
