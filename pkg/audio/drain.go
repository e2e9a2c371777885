package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to keep a producer from blocking after its consumer has gone away
// (e.g. a capture channel during session teardown).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
