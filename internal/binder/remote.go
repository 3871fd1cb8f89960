package binder

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kodeflow-oss/wsrpc"
	"github.com/kodeflow-oss/wsrpc/internal/envelope"
	"github.com/kodeflow-oss/wsrpc/registry"
)

// waiter is one outstanding call: Call parks here until resolve (response,
// timer, or connection close — whichever wins) delivers exactly once.
type waiter struct {
	resolved atomic.Bool
	done     chan struct{}
	result   json.RawMessage
	err      error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// resolve is safe to call more than once; only the first call has effect,
// satisfying the spec's "first-to-complete wins" race policy.
func (w *waiter) resolve(result json.RawMessage, err error) {
	if w.resolved.CompareAndSwap(false, true) {
		w.result = result
		w.err = err
		close(w.done)
	}
}

// RemoteBinder invokes methods executing on the remote peer over the
// interface it was constructed against (spec.md §4.5).
type RemoteBinder struct {
	conn            wsrpc.Connection
	ifaceType       reflect.Type
	terminationDelay time.Duration

	mu      sync.Mutex
	pending map[string]*waiter

	seq atomic.Uint64
	log *logrus.Entry
}

// RemoteOption configures a RemoteBinder at construction time.
type RemoteOption func(*remoteConfig)

type remoteConfig struct {
	registry *registry.Registry
}

// WithRemoteRegistry attaches the binder to a specific registry.Registry
// instead of registry.Default.
func WithRemoteRegistry(r *registry.Registry) RemoteOption {
	return func(c *remoteConfig) { c.registry = r }
}

// NewRemote constructs a RemoteBinder bound to interface I over conn. A
// terminationDelay <= 0 disables the per-call timeout (spec.md §6).
func NewRemote[I any](conn wsrpc.Connection, terminationDelay time.Duration, opts ...RemoteOption) *RemoteBinder {
	cfg := remoteConfig{registry: registry.Default}
	for _, opt := range opts {
		opt(&cfg)
	}

	rb := &RemoteBinder{
		conn:             conn,
		ifaceType:        reflect.TypeOf((*I)(nil)).Elem(),
		terminationDelay: terminationDelay,
		pending:          make(map[string]*waiter),
		log:              logrus.WithField("conn", conn.ID()),
	}

	cfg.registry.Register(rb)

	conn.OnReceive(func(data []byte, isText bool) {
		if !isText {
			return
		}
		rb.handleReceive(data)
	})
	conn.OnClose(func() {
		cfg.registry.Unregister(rb)
		rb.failAllPending(wsrpc.NewCallError(wsrpc.KindConnectionClosed, wsrpc.ErrMsgConnectionClosed))
	})

	return rb
}

// ConnectionID implements registry.Entry.
func (rb *RemoteBinder) ConnectionID() string { return rb.conn.ID() }

// RemoteInterface implements registry.RemoteEntry.
func (rb *RemoteBinder) RemoteInterface() reflect.Type { return rb.ifaceType }

// Call invokes method on the peer with args, decodes the reply's
// returnValue into result (a pointer, or nil for void calls), and returns
// a *wsrpc.CallError on any failure path described in spec.md §7.
func (rb *RemoteBinder) Call(ctx context.Context, method string, args []interface{}, result interface{}) error {
	callID := rb.nextCallID()

	w := newWaiter()
	rb.mu.Lock()
	rb.pending[callID] = w
	rb.mu.Unlock()

	if err := rb.send(ctx, callID, method, args); err != nil {
		rb.removeWaiter(callID)
		return wsrpc.NewCallError(wsrpc.KindSendFailure, err.Error())
	}

	var timer *time.Timer
	if rb.terminationDelay > 0 {
		timer = time.AfterFunc(rb.terminationDelay, func() {
			if rb.removeWaiter(callID) {
				w.resolve(nil, wsrpc.NewCallError(wsrpc.KindCancellation, "termination delay elapsed"))
			}
		})
	}

	select {
	case <-w.done:
		if timer != nil {
			timer.Stop()
		}
	case <-ctx.Done():
		if timer != nil {
			timer.Stop()
		}
		rb.removeWaiter(callID)
		return ctx.Err()
	}

	if w.err != nil {
		return w.err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(w.result, result); err != nil {
		return wsrpc.NewCallError(wsrpc.KindDecodeError, err.Error())
	}
	return nil
}

func (rb *RemoteBinder) nextCallID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return fmt.Sprintf("%d", rb.seq.Add(1))
}

func (rb *RemoteBinder) send(ctx context.Context, callID, method string, args []interface{}) error {
	rawArgs := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		rawArgs[i] = data
	}

	callIDJSON, err := json.Marshal(callID)
	if err != nil {
		return err
	}

	req := envelope.Request{
		FunctionName: method,
		Arguments:    rawArgs,
		CallID:       callIDJSON,
	}

	data, err := envelope.EncodeRequest(req)
	if err != nil {
		return err
	}

	ok, err := rb.conn.SendText(ctx, data)
	if err != nil {
		return err
	}
	if !ok {
		return errSendRejected
	}
	return nil
}

var errSendRejected = fmt.Errorf("%s", wsrpc.ErrMsgSendFailed)

// removeWaiter deletes callID from the pending map and reports whether it
// was still present (i.e. this caller won the race to resolve it).
func (rb *RemoteBinder) removeWaiter(callID string) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if _, ok := rb.pending[callID]; !ok {
		return false
	}
	delete(rb.pending, callID)
	return true
}

func (rb *RemoteBinder) handleReceive(data []byte) {
	resp, err := envelope.ParseResponse(data)
	if err != nil || resp.IsEmpty() {
		return
	}

	callID := string(resp.CallID)
	// CallID round-trips as a JSON string ("\"...\""); unquote to match
	// the id this binder allocated.
	var unquoted string
	if json.Unmarshal(resp.CallID, &unquoted) == nil {
		callID = unquoted
	}

	rb.mu.Lock()
	w, ok := rb.pending[callID]
	if ok {
		delete(rb.pending, callID)
	}
	rb.mu.Unlock()

	if !ok {
		// Late reply after timeout or close; dropped silently.
		return
	}

	if resp.Error != "" {
		w.resolve(nil, wsrpc.NewCallError(wsrpc.KindRemoteError, resp.Error))
		return
	}
	w.resolve(resp.ReturnValue, nil)
}

func (rb *RemoteBinder) failAllPending(err error) {
	rb.mu.Lock()
	pending := rb.pending
	rb.pending = make(map[string]*waiter)
	rb.mu.Unlock()

	for _, w := range pending {
		w.resolve(nil, err)
	}
}
