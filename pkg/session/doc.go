// Package session persists conversation history as JSONL files, one file
// per session.
//
// Invariants:
// - Session keys are validated and path-safe.
// - Writes for the same session are serialized.
// - History is append-only; the engine never rewrites past entries.
//
// Usage:
//
//	mgr, _ := session.New("/tmp/reina/sessions")
//	key := session.NewKey()
//	_ = mgr.Append(key, agent.NewUserMessage("hello"))
//	history, _ := mgr.Load(key)
//	_ = history
package session
