// Package chat contains the mock live-chat core: the append-only chat log, the replay
// sequencer that feeds it from a fixed script, the viewer composer and the reaction row.
//
// The pieces:
//   - Log: one ordered log per session with a single Append entry point. Both the
//     sequencer and the composer append through it, so neither writes to a stale copy.
//     Subscribers get the backlog and every later entry exactly once.
//   - Sequencer: waits each record's own delay, appends it, moves to the next. The first
//     failure (session closed, context cancelled) is logged and halts the replay for good.
//     It runs once per session.
//   - Composer: the viewer's input buffer. Submit appends immediately as the viewer
//     identity ("You") and clears the buffer.
//   - Reactions: per-button pulse that turns itself off two seconds after the latest press.
//   - Session and Manager: lifetime and lookup for the HTTP and terminal front ends.
//
// Scripted and viewer entries interleave in whatever order their appends happen; there is
// no ordering promise between the two writers.
package chat
