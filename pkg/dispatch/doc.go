// Package dispatch runs session-side command execution off the reader loop.
//
// Invariants:
// - Commands are grouped into lanes by tool; each lane starts its commands in FIFO order.
// - A lane never runs more than its concurrency limit at once.
// - Every submitted command produces exactly one response, including when the
//   executor returns an error, panics, or the queue is closed first.
//
// Usage:
//
//	q := dispatch.New(dispatch.Config{Executor: exec, Sink: writer.Write})
//	defer q.Close()
//	q.Submit(ctx, protocol.Command{ID: "open-1", Tool: "open"})
package dispatch
