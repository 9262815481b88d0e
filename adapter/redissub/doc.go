// Package redissub adapts Redis Pub/Sub into an xwait push source.
//
// A Source owns one Redis client; every Subscribe call attaches an
// xwait.Observer to a set of channels and drives it from a background
// goroutine until unsubscribed, the context ends, or the optional health
// probe reports the connection dead.
//
// Minimal config keys for ConfigFromMap:
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - username, password, db: client credentials
//   - tls, tls_server_name: enable TLS
//   - ping_timeout: startup ping deadline (default 2s)
//   - ping_interval: health probe period, 0 disables (default 0)
//
// Note that go-redis reconnects a broken Pub/Sub connection silently and
// messages published while it was down are lost. Without a health probe a
// pull-side waiter can therefore stall indefinitely, which is exactly the
// condition the cmd/stallrepro harness exists to reproduce.
package redissub
