// Package logging provides structured logging utilities for the mailgate application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (user identifier anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "graph.list")
//	logger.Info("listing emails",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("user operation",
//	    logging.UserHash(userID))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - User identifiers are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly; SanitizeToken renders only a length indicator
package logging
