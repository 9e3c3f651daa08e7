// Package prometheus renders session metrics in Prometheus text exposition
// format.
//
// Counter names are prefixed goauthclient_ and suffixed _total. The single
// histogram is goauthclient_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate session state.
package prometheus
