// Package jwt reads the claims of bearer access credentials on the client side.
//
// # Trust model
//
// Tokens are issued and verified by an external identity provider. This package
// never checks signatures: it only extracts the expiry and role claims so the
// session can decide whether a credential is still worth sending.
//
// # What this package must NOT do
//
//   - Treat a decoded token as authentic.
//   - Surface decode failures to callers of [Codec.IsExpired] or [Codec.ReadRoles].
//   - Perform I/O.
package jwt
