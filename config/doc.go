// Package config loads guildsync configuration from YAML files, environment
// variables and CLI flags, and validates it with go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (GUILDSYNC_ prefix)
//  4. CLI flags that were explicitly set
//
// Without explicit files, ./guildsync.yaml is read if present.
//
// # Environment Variables
//
// Every key maps to an environment variable with the GUILDSYNC_ prefix:
//   - bucket.url → GUILDSYNC_BUCKET_URL
//   - credentials.secret_key → GUILDSYNC_CREDENTIALS_SECRET_KEY
//   - sync.interval → GUILDSYNC_SYNC_INTERVAL
//
// # Credentials
//
// Bucket credentials are never compiled in. Set credentials.access_key and
// credentials.secret_key, or point credentials.keys_file at a JSON array of
// {"access_key", "secret_key"} pairs. ClientConfig resolves them.
package config
