package store

// Key namespaces shared by the orchestrator, registry, and purge engine.
const (
	SessionPrefix = "session:"
	MetaPrefix    = "leia:meta:"
	ModelsPrefix  = "models:"
)

// SessionKey returns the store key for a session record.
func SessionKey(sessionID string) string { return SessionPrefix + sessionID }

// MetaKey returns the store key for side metadata of a session.
func MetaKey(sessionID string) string { return MetaPrefix + sessionID }

// ModelsKey returns the store key for a synchronized provider listing.
func ModelsKey(scope string) string { return ModelsPrefix + scope }
