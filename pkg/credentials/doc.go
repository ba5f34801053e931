// Package credentials generates node identifiers and passwords from
// the system's cryptographic random source.
package credentials
