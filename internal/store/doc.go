// Package store provides persistence for per-user OAuth connections.
//
// A connection row holds encrypted access and refresh tokens for one user
// and one provider. The package never sees token plaintext: encryption and
// decryption happen in the token layer, and this package only moves opaque
// ciphertext strings in and out of Postgres.
package store
