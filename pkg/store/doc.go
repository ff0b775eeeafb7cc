// Package store provides TTL-bounded key/value persistence for sessions,
// conversations, and provider metadata.
//
// Invariants:
// - Get on an absent or expired key reports not-found, never an error.
// - No entry is renewed by read access; only writes reset expiry.
// - Hash records share a single expiry across all fields of the key.
//
// Usage:
//
//	s, _ := store.Open(store.Config{Path: "leia.db"})
//	defer s.Close()
//	_ = s.Put(ctx, "session:1", payload, time.Hour)
//	v, ok, _ := s.Get(ctx, "session:1")
//	_ = v
//	_ = ok
package store
