// Package token provides token generation and hashing utilities.
//
// This package implements cryptographically secure random token
// generation plus SHA-256 hashing and constant-time verification. It
// backs request identifiers and integrity checks on opaque values.
//
// Security:
//
//   - Uses crypto/rand for CSPRNG
//   - SHA-256 hashing with constant-time comparison
//
// @design DS-0101
package token
