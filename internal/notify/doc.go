// Package notify fans alerts and run-completion messages out to
// webhook channels.
//
// Channels come from a YAML config file and can be hot-reloaded: the
// dispatcher watches the file and swaps in a new channel set on
// change, keeping the last good config when a reload fails to parse.
//
// Delivery is parallel and isolated per channel: a channel that is
// down, rate limited or deduplicated never blocks the others. Every
// delivery attempt, including skips, lands in the notifications table.
package notify
