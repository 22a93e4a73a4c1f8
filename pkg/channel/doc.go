// Package channel implements the two append-only JSONL logs a session owns:
// the command log callers write into and the response log callers read from.
//
// Invariants:
// - One record per line; a record without its trailing newline is never parsed.
// - Every append is a single write on an O_APPEND descriptor followed by a sync.
// - Readers keep their own byte cursor and never truncate or rewrite a log.
// - Every complete line in a batch is processed, in order.
package channel
