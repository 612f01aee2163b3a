// Package diagnostics publishes a record for every HTTP request and WebSocket
// upgrade handled by the volt servers.
//
// Records are purely observational: the serving path publishes them and moves
// on, and nothing in the servers reads them back. A Hub fans each record out to
// any number of subscribers without blocking the publisher; a subscriber that
// falls behind loses records rather than stalling a request. Late subscribers
// immediately receive the most recent record, and a bounded history is kept for
// tools that want to render what happened before they attached.
//
// Each Hub also hands out record ids. HTTP hubs count up from 1 and WebSocket
// hubs count down from -1, so ids from the two front-ends never collide; the
// Connection field names the source explicitly as well.
package diagnostics
