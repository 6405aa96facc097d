// Package transport defines the adapter between the delivery layer and
// the wire, plus a websocket client implementation of it.
//
// The delivery layer only depends on the Transport interface: per-topic
// subscription, connection-state notification, resume notification,
// and best-effort settings forwarding. WSClient implements Transport
// over a single shared websocket connection to the telemetry server,
// with automatic reconnection (pkg/connection) and ping/pong liveness.
//
// Topic filtering happens client-side: the server pushes the full
// firehose and WSClient fans each decoded envelope out to the handlers
// registered for its topic. Subscribe additionally sends a best-effort
// subscribe control frame so servers that support server-side filtering
// can narrow the feed.
package transport
