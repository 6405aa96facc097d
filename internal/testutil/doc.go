// Package testutil provides shared test doubles for the delivery
// layer, currently an in-memory transport.
package testutil
