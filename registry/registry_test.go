package registry_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kodeflow-oss/wsrpc/registry"
)

type chatService interface {
	Say(msg string) string
}

type fakeLocal struct {
	connID string
	obj    interface{}
}

func (f *fakeLocal) ConnectionID() string      { return f.connID }
func (f *fakeLocal) LocalObject() interface{}  { return f.obj }

type fakeRemote struct {
	connID string
	iface  reflect.Type
}

func (f *fakeRemote) ConnectionID() string             { return f.connID }
func (f *fakeRemote) RemoteInterface() reflect.Type     { return f.iface }

func TestAllForConnection(t *testing.T) {
	t.Parallel()

	r := registry.New()
	a := &fakeLocal{connID: "conn-a", obj: struct{}{}}
	b := &fakeLocal{connID: "conn-b", obj: struct{}{}}
	r.Register(a)
	r.Register(b)

	got := r.AllForConnection("conn-a")
	if len(got) != 1 || got[0] != registry.Entry(a) {
		t.Errorf("AllForConnection(conn-a) = %v, want [a]", got)
	}
}

func TestRemoteOfType(t *testing.T) {
	t.Parallel()

	r := registry.New()
	iface := reflect.TypeOf((*chatService)(nil)).Elem()
	r.Register(&fakeRemote{connID: "c1", iface: iface})
	r.Register(&fakeRemote{connID: "c2", iface: reflect.TypeOf((*error)(nil)).Elem()})

	got := registry.RemoteOfType[chatService](r)
	if len(got) != 1 {
		t.Fatalf("RemoteOfType returned %d entries, want 1", len(got))
	}
	if got[0].ConnectionID() != "c1" {
		t.Errorf("ConnectionID = %v, want c1", got[0].ConnectionID())
	}
}

func TestRemoteOfTypeForObjectFiltersByIdentity(t *testing.T) {
	t.Parallel()

	r := registry.New()
	objO := &struct{ name string }{"O"}
	objOther := &struct{ name string }{"other"}
	iface := reflect.TypeOf((*chatService)(nil)).Elem()

	// A and B both observe objO; C observes a different object.
	r.Register(&fakeLocal{connID: "A", obj: objO})
	r.Register(&fakeLocal{connID: "B", obj: objO})
	r.Register(&fakeLocal{connID: "C", obj: objOther})

	r.Register(&fakeRemote{connID: "A", iface: iface})
	r.Register(&fakeRemote{connID: "B", iface: iface})
	r.Register(&fakeRemote{connID: "C", iface: iface})

	got := registry.RemoteOfTypeForObject[chatService](r, objO)
	if len(got) != 2 {
		t.Fatalf("got %d remote entries, want 2", len(got))
	}
	conns := map[string]bool{}
	for _, e := range got {
		conns[e.ConnectionID()] = true
	}
	if !conns["A"] || !conns["B"] || conns["C"] {
		t.Errorf("connections = %v, want exactly {A, B}", conns)
	}
}

func TestUnregisterRemovesEntry(t *testing.T) {
	t.Parallel()

	r := registry.New()
	a := &fakeLocal{connID: "conn-a", obj: struct{}{}}
	r.Register(a)
	r.Unregister(a)

	if got := r.AllForConnection("conn-a"); len(got) != 0 {
		t.Errorf("AllForConnection after Unregister = %v, want empty", got)
	}
}

func TestCallManyDropsFailuresSilently(t *testing.T) {
	t.Parallel()

	targets := []int{1, 2, 3, 4}
	results := registry.CallMany(targets, func(n int) (interface{}, error) {
		if n%2 == 0 {
			return nil, errors.New("boom")
		}
		return n * 10, nil
	})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	sum := 0
	for _, r := range results {
		sum += r.(int)
	}
	if sum != 40 { // 1*10 + 3*10
		t.Errorf("sum = %d, want 40", sum)
	}
}

func TestCallManyVoidAwaitsAll(t *testing.T) {
	t.Parallel()

	var count int32
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}

	targets := []int{1, 2, 3}
	registry.CallManyVoid(targets, func(n int) error {
		<-mu
		count++
		mu <- struct{}{}
		return nil
	})

	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
