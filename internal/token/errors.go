package token

import "errors"

var (
	// ErrNotConnected is returned when the user has no active provider
	// connection to draw a token from.
	ErrNotConnected = errors.New("no active provider connection")

	// ErrDecryptionFailed is returned when stored token ciphertext cannot be
	// decrypted, usually after an encryption key rotation. The user must
	// reconnect their account.
	ErrDecryptionFailed = errors.New("token decryption failed")

	// ErrReauthNeeded is returned when a token refresh is rejected by the
	// provider, meaning the refresh token is expired or revoked and the user
	// must re-authorize.
	ErrReauthNeeded = errors.New("token refresh rejected, re-authorization required")
)
