// Package stream implements the hand-off bridge between a callback-driven
// producer and a pull-based consumer.
//
// An LLM client delivers output through synchronous callback invocations on
// a worker goroutine. The Bridge turns those callbacks into a bounded FIFO
// channel that the original caller drains as a lazy sequence, with a
// per-pull timeout so the consumer never blocks indefinitely. End of stream
// is a closed channel, fired exactly once whether generation succeeded or
// failed, so the consumer always reaches a terminal state.
package stream
