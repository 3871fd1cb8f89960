package binder

import (
	"fmt"
	"reflect"
	"strings"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// methodEntry is one row of a LocalBinder's dispatch table: the reflected
// method together with enough shape information to decode arguments and
// encode a result without re-inspecting the type on every call.
type methodEntry struct {
	name         string
	fn           reflect.Value
	paramTypes   []reflect.Type
	returnsValue bool // method has a non-error return value
	returnsError bool // method's last return value is error
}

// buildMethodTable reflects over target's exported methods and returns a
// name -> methodEntry map. When caseInsensitive is true, lookups fold
// method names to lower case; if two methods collide after folding,
// construction fails (spec.md §4.4: "Overloads are unsupported").
func buildMethodTable(target interface{}, caseInsensitive bool) (map[string]methodEntry, error) {
	v := reflect.ValueOf(target)
	t := v.Type()

	table := make(map[string]methodEntry, t.NumMethod())
	seen := make(map[string]string, t.NumMethod())

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		entry, err := describeMethod(m, v.Method(i))
		if err != nil {
			return nil, fmt.Errorf("binder: method %s: %w", m.Name, err)
		}

		key := m.Name
		if caseInsensitive {
			key = strings.ToLower(key)
		}
		if existing, ok := seen[key]; ok {
			return nil, fmt.Errorf("binder: methods %s and %s collide under the binder's name-matching policy", existing, m.Name)
		}
		seen[key] = m.Name
		table[key] = entry
	}

	return table, nil
}

func describeMethod(m reflect.Method, bound reflect.Value) (methodEntry, error) {
	fnType := bound.Type()

	paramTypes := make([]reflect.Type, fnType.NumIn())
	for i := range paramTypes {
		paramTypes[i] = fnType.In(i)
	}

	entry := methodEntry{name: m.Name, fn: bound, paramTypes: paramTypes}

	switch fnType.NumOut() {
	case 0:
	case 1:
		if fnType.Out(0) == errorType {
			entry.returnsError = true
		} else {
			entry.returnsValue = true
		}
	case 2:
		if fnType.Out(1) != errorType {
			return methodEntry{}, fmt.Errorf("second return value must be error, got %s", fnType.Out(1))
		}
		entry.returnsValue = true
		entry.returnsError = true
	default:
		return methodEntry{}, fmt.Errorf("method has %d return values, want at most (value, error)", fnType.NumOut())
	}

	return entry, nil
}

func lookupKey(name string, caseInsensitive bool) string {
	if caseInsensitive {
		return strings.ToLower(name)
	}
	return name
}
