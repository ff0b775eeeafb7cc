// Package wizard drives the LEIA creation loop: it repeatedly asks the
// active provider for the next action, executes requested tools, folds
// results back into the conversation, and streams progress events.
//
// Invariants:
// - At most 15 provider round trips per turn.
// - Conversation history is append-only within a turn.
// - Every event stream ends with complete, error, or stream_end.
// - Tool results enter history in the order the provider requested them.
//
// Usage:
//
//	o := wizard.New(wizard.Config{...})
//	sess, _ := o.CreateSession(ctx, "default", "", "")
//	for ev := range o.StartTurn(ctx, sess.ID, "Build me a LEIA about sorting") {
//		_ = ev
//	}
package wizard
