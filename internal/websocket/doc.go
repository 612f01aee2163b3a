// Package websocket is the WebSocket (version 13) front-end of volt.
//
// A Server owns a port of its own: every accepted connection is expected to
// start with an upgrade request. A handshake that is not version 13 or has
// no key is dropped without a response. Upgraded connections are kept in a
// Hub so that messages can be broadcast to all of them.
//
// Outbound messages are split into frames of at most MaxFramePayload bytes.
// By default the receive path only answers pings; Config.StrictFraming turns
// on full frame decoding with unmasking, payload-echoing pongs and the close
// handshake.
package websocket
