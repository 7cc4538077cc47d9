// Package dispatch turns matched commands into ordered OSC side effects.
//
// The pipeline is the single consumer of the intake queue: utterances are
// processed strictly in arrival order and at most one command executes at
// a time, so effects reach the DAW in the order the operator spoke them.
// The executor issues one command's steps serially with a short pause
// between consecutive steps.
//
// Key behaviors:
//   - Serial FIFO processing (one command at a time)
//   - Busy gate checked at execution time, not match time
//   - Per-command cooldown debounce on top of a global default
//   - Send errors recorded but non-fatal (datagrams are unacknowledged,
//     so a local send error and a lost packet are treated alike)
//   - Inter-step pause is interruptible; an in-flight send is not
//
// Outcome classification:
//   - completed: every step was issued
//   - partial: stopped early (unresolved effect, cancellation)
//   - blocked: busy gate refused the command before any step
//
// The runtime view (table, matcher, bindings) swaps atomically on reload;
// an utterance already dequeued finishes against the view it started
// with.
package dispatch
