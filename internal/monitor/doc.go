// Package monitor renders a live terminal view of the call records
// published by the HTTP and WebSocket front-ends.
//
// The monitor subscribes to one or more diagnostics hubs and keeps the
// most recent records in a table, replacing a pending record in place once
// its completed form arrives. It is started by `volt-server serve
// --monitor`, which also redirects logging to a file so log lines do not
// tear the alternate screen.
package monitor
