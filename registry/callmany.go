package registry

import "sync"

// CallMany invokes call concurrently across every target, awaits all of
// them, and returns only the results of the calls that succeeded — a
// failed or cancelled call is dropped silently, not re-raised (spec.md
// §4.6). Order of the returned slice is not meaningful.
func CallMany[T any](targets []T, call func(T) (interface{}, error)) []interface{} {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []interface{}
	)

	wg.Add(len(targets))
	for _, target := range targets {
		target := target
		go func() {
			defer wg.Done()
			result, err := call(target)
			if err != nil {
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results
}

// CallManyVoid is the non-result-returning variant of CallMany: it simply
// awaits every call, ignoring both results and errors.
func CallManyVoid[T any](targets []T, call func(T) error) {
	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, target := range targets {
		target := target
		go func() {
			defer wg.Done()
			_ = call(target)
		}()
	}
	wg.Wait()
}
