package completion

// Future is the pending result of a completion started with Client.Start.
type Future struct {
	done chan struct{}
	text string
	err  error
}

// Async runs fn on a new goroutine and returns a Future resolved with its result.
func Async(fn func() (string, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.text, f.err = fn()
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available.
func (f *Future) Wait() (string, error) {
	<-f.done
	return f.text, f.err
}
