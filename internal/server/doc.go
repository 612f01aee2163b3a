// Package server implements the generic TCP accept loop shared by the volt
// HTTP and WebSocket front-ends.
//
// A Server owns one listening socket at a time. Start binds the port and runs
// the accept loop on its own goroutine; every accepted connection is handed to
// the ConnHandler on a goroutine of its own, so a slow client never delays the
// next accept. Panics and errors returned by the handler are caught at that
// dispatch boundary and logged.
//
// # Lifecycle
//
//	srv := server.New("http", handler,
//	    server.WithStartedCallback(func(port int) { ... }),
//	)
//	if err := srv.Start(8080); err != nil {
//	    return err
//	}
//	defer srv.Stop(context.Background())
//
// Start and Stop are idempotent. Stop closes the listener and waits for the
// accept loop to observe the shutdown flag and exit. The loop clears the flag
// on its way out, so the same Server can be started again, possibly on a
// different port, even when Stop gave up waiting. A Start issued while a stop
// is in progress waits for the old loop first. Connections that were already
// dispatched are left to finish on their own.
//
// Accept errors other than a closed listener are retried with a backoff that
// doubles from 5ms up to one second.
//
// The listener is created with SO_REUSEADDR on unix platforms so a
// stop/start cycle can rebind the same port immediately.
package server
