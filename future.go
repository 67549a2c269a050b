package mqttclient

import (
	"context"
	"sync"
)

// Future is the result of an asynchronous operation on a connection.
//
// Every Future is eventually resolved or rejected: by the matching
// acknowledgement, or with ErrConnectionLost when the connection ends first.
//
//	f := conn.Publish(&mqttclient.Message{Topic: "a/b", Payload: []byte("hi"), QoS: 1})
//	if _, err := f.Wait(ctx); err != nil {
//		log.Printf("publish: %v", err)
//	}
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Wait blocks until the operation completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed once the operation completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome without blocking, or ErrPending before Done is closed.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
		var zero T
		return zero, ErrPending
	}
}

// complete settles the future once; later calls are ignored.
func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

func (f *Future[T]) resolve(v T) {
	f.complete(v, nil)
}

func (f *Future[T]) reject(err error) {
	var zero T
	f.complete(zero, err)
}
