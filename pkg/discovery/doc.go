// Package discovery advertises and locates telemetry servers on the
// local network via mDNS/DNS-SD.
//
// Servers register under the service type "_telemflow._tcp" with TXT
// records describing the websocket and HTTP API paths. Clients browse
// for servers or wait for the first one to appear, so the monitor can
// find the vehicle without a configured address.
package discovery
