// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package stream

import (
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// OverloadedMessage is yielded when no fragment arrives within the
// configured timeout.
const OverloadedMessage = "The server is overloaded, retry later. Thanks for your patience"

const (
	defaultTimeout  = 30 * time.Second
	defaultCapacity = 256
)

// Stats summarizes one drained exchange.
type Stats struct {
	// Answer is the accumulated output, including a terminal degraded
	// message if the drain timed out.
	Answer string

	// FirstToken is the time from drain start until the first fragment
	// arrived. Zero when no fragment ever arrived.
	FirstToken time.Duration

	// Elapsed is the total drain duration.
	Elapsed time.Duration

	// TimedOut reports whether the drain ended on the pull timeout
	// instead of the end-of-stream sentinel.
	TimedOut bool
}

// Bridge decouples a producer that emits output through synchronous callback
// invocations from a consumer that pulls output as a lazy sequence.
//
// Exactly one producer goroutine pushes fragments per question; the original
// caller drains them. Every fragment pushed while the consumer is draining
// is observed, in push order. End of stream is signalled by closing the
// underlying channel, guarded to fire exactly once whether the generation
// succeeded or failed.
type Bridge struct {
	ch      chan string
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
	logger  *slog.Logger
	onDone  func(Stats)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout sets how long a single pull waits for the next fragment.
// Default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithCapacity sets the hand-off channel buffer size.
// Default is 256.
func WithCapacity(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.ch = make(chan string, n)
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
	}
}

// WithOnDone sets a callback invoked once when the drain finishes,
// whatever the outcome. Useful for exchange accounting.
func WithOnDone(fn func(Stats)) Option {
	return func(b *Bridge) {
		b.onDone = fn
	}
}

// New creates a bridge for a single question/answer exchange.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		ch:      make(chan string, defaultCapacity),
		done:    make(chan struct{}),
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push appends one fragment to the hand-off channel. While the consumer is
// draining, a push on a full buffer waits for the next pull, so no fragment
// is ever lost to a slow consumer. Once the drain has terminated (the
// consumer timed out, abandoned the sequence, or finished), further
// fragments are dropped so the producer can run to completion.
func (b *Bridge) Push(fragment string) {
	select {
	case b.ch <- fragment:
	case <-b.done:
		b.logger.Debug("dropping fragment, consumer gone", "length", len(fragment))
	}
}

// Close signals end of stream. Safe to call more than once; only the first
// call has effect. The producer must call Close exactly when generation
// completes, on success or failure, so the consumer always reaches a
// terminal state.
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.ch)
	})
}

// Notify pushes a terminal human-readable message and closes the stream.
// Producer-side failures are funneled through here rather than dropped,
// so they stay visible to the consumer.
func (b *Bridge) Notify(message string) {
	b.Push(message)
	b.Close()
}

// Drain returns the consumer side of the bridge as a lazy sequence of
// fragments. Each pull waits up to the configured timeout; if nothing
// arrives in that window the sequence yields OverloadedMessage once and
// stops. A closed channel with zero prior fragments is an empty successful
// answer, not a timeout.
//
// Drain is single-use and single-consumer, and the returned sequence must
// be iterated: when it terminates, blocked and future pushes are released.
func (b *Bridge) Drain() iter.Seq[string] {
	return func(yield func(string) bool) {
		// Signals the producer that nobody is pulling anymore, whatever
		// the exit path.
		defer close(b.done)

		var answer strings.Builder
		var firstToken time.Duration
		start := time.Now()

		timer := time.NewTimer(b.timeout)
		defer timer.Stop()

		for {
			select {
			case fragment, ok := <-b.ch:
				if !ok {
					b.finish(answer.String(), firstToken, time.Since(start), false)
					return
				}
				if firstToken == 0 {
					firstToken = time.Since(start)
				}
				answer.WriteString(fragment)
				if !yield(fragment) {
					b.finish(answer.String(), firstToken, time.Since(start), false)
					return
				}
			case <-timer.C:
				answer.Reset()
				answer.WriteString(OverloadedMessage)
				yield(OverloadedMessage)
				b.finish(answer.String(), firstToken, time.Since(start), true)
				return
			}

			// Re-arm the pull timeout for the next fragment.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(b.timeout)
		}
	}
}

func (b *Bridge) finish(answer string, firstToken, elapsed time.Duration, timedOut bool) {
	if timedOut {
		b.logger.Warn("stream timed out waiting for fragment",
			"timeout", b.timeout,
			"elapsed_ms", elapsed.Milliseconds())
	} else {
		b.logger.Info("stream complete",
			"length", len(answer),
			"ttft_ms", firstToken.Milliseconds(),
			"elapsed_ms", elapsed.Milliseconds())
	}

	if b.onDone != nil {
		b.onDone(Stats{
			Answer:     answer,
			FirstToken: firstToken,
			Elapsed:    elapsed,
			TimedOut:   timedOut,
		})
	}
}
