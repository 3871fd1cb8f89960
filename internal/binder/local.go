// Package binder implements the two binder kinds of spec.md §4.4/§4.5: the
// LocalBinder, which dispatches incoming requests to a bound object's
// methods, and the RemoteBinder, which allocates callIds and parks callers
// awaiting a matching response.
package binder

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kodeflow-oss/wsrpc"
	"github.com/kodeflow-oss/wsrpc/internal/envelope"
	"github.com/kodeflow-oss/wsrpc/registry"
)

// LocalBinder exposes target's exported methods to whatever invokes them
// over the bound Connection, per spec.md §4.4.
type LocalBinder struct {
	conn            wsrpc.Connection
	target          interface{}
	methods         map[string]methodEntry
	caseInsensitive bool
	log             *logrus.Entry
}

// LocalOption configures a LocalBinder at construction time.
type LocalOption func(*localConfig)

type localConfig struct {
	caseSensitive bool
	registry      *registry.Registry
}

// WithCaseSensitiveNames disables the default case-insensitive method-name
// matching (spec.md Open Questions: "implementation-defined, but uniform").
func WithCaseSensitiveNames() LocalOption {
	return func(c *localConfig) { c.caseSensitive = true }
}

// WithRegistry attaches the binder to a specific registry.Registry instead
// of registry.Default.
func WithRegistry(r *registry.Registry) LocalOption {
	return func(c *localConfig) { c.registry = r }
}

// NewLocal constructs a LocalBinder over target and subscribes it to
// conn's receive notification. Construction fails if two of target's
// methods collide under the binder's name-matching policy (spec.md §4.4:
// "Overloads are unsupported").
func NewLocal(conn wsrpc.Connection, target interface{}, opts ...LocalOption) (*LocalBinder, error) {
	cfg := localConfig{registry: registry.Default}
	for _, opt := range opts {
		opt(&cfg)
	}

	caseInsensitive := !cfg.caseSensitive
	methods, err := buildMethodTable(target, caseInsensitive)
	if err != nil {
		return nil, err
	}

	lb := &LocalBinder{
		conn:            conn,
		target:          target,
		methods:         methods,
		caseInsensitive: caseInsensitive,
		log:             logrus.WithField("conn", conn.ID()),
	}

	cfg.registry.Register(lb)
	conn.OnReceive(func(data []byte, isText bool) {
		if !isText {
			return
		}
		lb.dispatch(data)
	})
	conn.OnClose(func() {
		cfg.registry.Unregister(lb)
	})

	return lb, nil
}

// ConnectionID implements registry.Entry.
func (lb *LocalBinder) ConnectionID() string { return lb.conn.ID() }

// LocalObject implements registry.LocalEntry.
func (lb *LocalBinder) LocalObject() interface{} { return lb.target }

// dispatch parses one frame as a request; non-request frames (including
// responses, handled by a RemoteBinder subscribed to the same Connection)
// are silently ignored here.
func (lb *LocalBinder) dispatch(data []byte) {
	req, err := envelope.ParseRequest(data)
	if err != nil || req.IsEmpty() {
		return
	}

	go lb.invoke(req)
}

func (lb *LocalBinder) invoke(req envelope.Request) {
	resp := envelope.Response{CallID: req.CallID}

	key := lookupKey(req.FunctionName, lb.caseInsensitive)
	entry, ok := lb.methods[key]
	if !ok {
		resp.Error = fmt.Sprintf(wsrpc.ErrMsgMethodNotFoundFmt, req.FunctionName)
		lb.respond(resp)
		return
	}

	args, err := lb.decodeArguments(entry, req.Arguments)
	if err != nil {
		resp.Error = err.Error()
		lb.respond(resp)
		return
	}

	out := entry.fn.Call(args)

	var callErr error
	var resultVal reflect.Value
	switch {
	case entry.returnsValue && entry.returnsError:
		resultVal, callErr = out[0], toError(out[1])
	case entry.returnsValue:
		resultVal = out[0]
	case entry.returnsError:
		callErr = toError(out[0])
	}

	if callErr != nil {
		resp.Error = callErr.Error()
		lb.respond(resp)
		return
	}

	if entry.returnsValue {
		data, err := json.Marshal(resultVal.Interface())
		if err != nil {
			resp.Error = errors.Wrap(err, "binder: encode result").Error()
			lb.respond(resp)
			return
		}
		resp.ReturnValue = data
	} else {
		resp.ReturnValue = json.RawMessage("null")
	}

	lb.respond(resp)
}

func (lb *LocalBinder) decodeArguments(entry methodEntry, raw []json.RawMessage) ([]reflect.Value, error) {
	if len(raw) != len(entry.paramTypes) {
		return nil, fmt.Errorf("binder: expected %d arguments, got %d", len(entry.paramTypes), len(raw))
	}

	args := make([]reflect.Value, len(entry.paramTypes))
	for i, paramType := range entry.paramTypes {
		ptr := reflect.New(paramType)
		if err := json.Unmarshal(raw[i], ptr.Interface()); err != nil {
			return nil, errors.Wrapf(err, "binder: decode argument %d", i)
		}
		args[i] = ptr.Elem()
	}
	return args, nil
}

func (lb *LocalBinder) respond(resp envelope.Response) {
	data, err := envelope.EncodeResponse(resp)
	if err != nil {
		lb.log.WithError(err).Error("failed to encode response envelope")
		return
	}

	if _, err := lb.conn.SendText(context.Background(), data); err != nil {
		lb.log.WithError(err).Warn("failed to send response; closing connection")
		lb.conn.Close(context.Background(), wsrpc.StatusInternalError, wsrpc.ErrMsgInternalError)
	}
}

func toError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}
