// Package token mediates access tokens for per-user provider connections.
//
// The Manager is the only component allowed to see token plaintext. It loads
// encrypted connections from the store, decrypts them, refreshes tokens that
// are within the expiry window, and persists refreshed ciphertext, all under
// a per-user lock so concurrent tool calls for the same user perform at most
// one refresh.
//
// Token material never appears in log output or error messages. Callers that
// need to log token context use logging.SanitizeToken.
package token
