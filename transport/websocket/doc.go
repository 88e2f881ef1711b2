// Package websocket provides the real-time channel for game sessions.
//
// A central Hub keeps one room per subscribed session and routes clients and
// frames to it. Each room runs on its own goroutine and owns its clients, so
// sessions do not wait on each other. Each connection has a read pump that
// turns client requests into game service calls and a write pump that drains
// its send buffer.
//
// Message Protocol:
//
// Clients connect with ?session=<id>&player=<id>; leaving out player
// subscribes a spectator. Client frames are JSON requests:
//   - {"type": "roll"}  resolve the caller's turn
//   - {"type": "sync"}  request a fresh snapshot
//
// Server frames are envelopes {type, session_id, version, data} where type is
// snapshot, player_joined, dice_rolled, session_finished, connectivity or
// error. Every frame except error carries the session version it reflects.
//
// Connection Lifecycle:
//
// 1. The session (and player, if given) is checked before upgrading
// 2. The client is registered and its player marked connected; a session
// deleted in the meantime gets an error frame and a close
// 3. A snapshot is sent before any later broadcast
// 4. Accepted rolls are broadcast to the session; rejections go only to the
// sender
// 5. When a player's last connection closes it is marked disconnected and
// the remaining subscribers receive a connectivity frame
// 6. Deleting or expiring the session closes every connection
//
// Ordering:
//
// Every committed change bumps the session version by one. A room sends
// state frames in version order: a frame that arrives ahead of a missing
// version is held until that version is published, or sent anyway after a
// short timeout. Nothing is dropped for being late. A client skips only
// frames already reflected in the snapshot it started from.
package websocket
