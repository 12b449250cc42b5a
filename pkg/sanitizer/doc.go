// Package sanitizer normalizes caller-supplied identity values before they
// reach authorization checks.
//
// All functions are idempotent. Invalid input yields an empty string rather
// than an error, so callers treat it the same as a missing value.
package sanitizer
