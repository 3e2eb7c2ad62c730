// Package log provides secure logging functionality with automatic
// sanitization of sensitive information, built on top of the standard
// slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (API keys, bearer
//     tokens, backend credentials)
//   - Configurable log levels with verbose mode support
//   - Consistent log formatting across the application
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in
// log output:
//   - HTTP headers (Authorization, Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (JWTs, bearer and
//     basic auth tokens, private key material)
//   - Database connection strings
//
// Even in verbose mode, sensitive values are masked to prevent
// accidental exposure of the cloud backend credentials in logs pulled
// off a field hub.
//
// # Usage
//
//	// Create a secure logger
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	// Use as a standard slog.Logger
//	logger.Info("backend call",
//	    "api_key", cfg.APIKey, // Will be masked
//	    "node_id", "ridge-03",
//	)
//
//	// Set as default logger
//	slog.SetDefault(logger)
package log
