// Package monitor relays one Archipelago session into one chat channel.
//
// A Monitor owns a live session, renders each event with the recipient
// mention policy, batches item and hint bursts into numbered digests and
// reconnects on its own after the session drops. The Registry keeps at
// most one Monitor per (host, port, player) identity.
package monitor
