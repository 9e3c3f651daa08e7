// Package tokenstore persists the client's access and refresh credentials.
//
// # Backends
//
//   - [MemoryStore] keeps credentials for the lifetime of the process only. It pairs
//     with cookie-borne refresh, where the refresh credential lives in the HTTP
//     cookie jar and never reaches this package.
//   - [DiskStore] writes the two entries access_token and refresh_token to a local
//     directory, surviving restarts.
//   - [RedisStore] keeps the same two entries under a key prefix in Redis.
//
// The durable backends trade exposure for reload persistence: anything with
// access to the directory or the Redis keyspace can read the credentials.
//
// # What this package must NOT do
//
//   - Decode, validate, or refresh credentials.
//   - Hold more than one current access credential per store.
package tokenstore
