// Package config defines the worker configuration structure.
//
// The configuration is loaded by infra/confloader with the usual
// priority: flags over environment over file over defaults. Verify
// checks cross-field constraints before the worker starts; Sanitize
// strips secrets for logging.
package config
