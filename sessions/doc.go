// Package sessions holds the server-side session state created by the
// initialize handshake and the concurrent Table that owns it.
//
// A Session binds a sequence of protocol calls to one handshake and one
// authenticated principal. Sessions live only in process memory. There is no
// background reaper: idle sessions are purged lazily by whoever calls
// Table.PurgeIdle, which the dispatcher does on every initialize.
package sessions
