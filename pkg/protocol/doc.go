// Package protocol defines the records exchanged between callers and sessions
// through the shared directory, and the on-disk layout of a session.
//
// Invariants:
// - Command and response records are newline-delimited JSON, one record per line.
// - A record only exists once its trailing newline has been written.
// - Session ids are safe to use as a filename component.
//
// Layout:
//
//	<dir>/<id>.meta.json  descriptor fields plus "timestamp"; mtime is the liveness signal
//	<dir>/<id>.in         command log, appended by callers, tailed by the session
//	<dir>/<id>.out        response log, appended by the session, tailed by callers
package protocol
