// Package auth issues and validates the HS256 bearer tokens used by the
// HTTP API and maps token roles to permissions.
package auth
