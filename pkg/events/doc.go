// Package events provides a publish/subscribe broker for pool lifecycle
// events: environment creation, reset, episode completion and closure,
// worker startup and exit, and pool shutdown. The router publishes; the
// API's /events stream and tests subscribe. Slow subscribers drop events
// rather than block the broker.
package events
