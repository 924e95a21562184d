// Package session manages the agent process behind each workspace.
//
// # Overview
//
// Every workspace runs its coding assistant inside a detached tmux session
// named "<prefix>-<first 8 chars of the workspace id>". The Manager keeps an
// in-memory registry of those sessions, samples their panes on a fixed
// interval and streams the newly appended output to subscribers.
//
// # Registry
//
// The registry maps workspace id to *Session behind a sync.RWMutex. A record
// is "live" while its capture loop runs. Subscribing to a workspace that has
// no record yet creates a placeholder so the subscription survives until the
// session starts; StartSession adopts the placeholder's subscribers.
//
// After a daemon restart the registry is empty. The persisted workspace
// record says what should be running, and StartSession reattaches to a tmux
// session that still exists instead of creating a new one.
//
// # Capture
//
// Each sample is "tmux capture-pane -p -S -<depth>". NewContent compares it
// with the previous sample line by line and returns everything from the first
// differing line on. Identical samples emit nothing. Output that scrolls
// entirely out of the captured window between two samples is re-emitted;
// the window and interval are configurable to trade that off.
//
// # Fan-out
//
// Each subscriber owns a bounded channel drained by its own goroutine, so a
// slow subscriber never stalls the capture loop or other subscribers. When a
// subscriber's buffer is full the event is dropped for that subscriber only.
package session
