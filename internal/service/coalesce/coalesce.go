// Package coalesce deduplicates concurrent marketplace reads for the same
// listing into a single in-flight call.
package coalesce

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// ProducerError wraps a failure from the producer function. Every waiter on
// the coalesced call receives the same wrapped error.
type ProducerError struct {
	Key   string
	Cause error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer failed for %q: %v", e.Key, e.Cause)
}

func (e *ProducerError) Unwrap() error {
	return e.Cause
}

// Coalescer is a single-flight keyed map. Concurrent callers for the same key
// observe one invocation of the producer; the slot lives only while at least
// one caller waits and is evicted on completion, so later calls re-execute.
type Coalescer struct {
	group singleflight.Group
}

// New creates a Coalescer.
func New() *Coalescer {
	return &Coalescer{}
}

// GetOrExecute runs producer once per key per in-flight window. All
// concurrent callers for the key receive the identical result or the
// identical ProducerError.
func (c *Coalescer) GetOrExecute(key string, producer func() (interface{}, error)) (interface{}, error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := producer()
		if err != nil {
			return nil, &ProducerError{Key: key, Cause: err}
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Clear removes an in-flight slot so the next caller re-executes rather than
// joining the pending call.
func (c *Coalescer) Clear(key string) {
	c.group.Forget(key)
}
