// Package session persists session records and wizard conversations in
// the TTL store.
//
// Invariants:
// - Session records are hash maps under "session:<id>" so purge scans
//   can read single fields without deserializing the conversation.
// - Every conversation mutation is a full re-write that restarts the
//   nominal TTL; reads never renew expiry.
// - A conversation is completed exactly when all three artifacts are set.
package session
