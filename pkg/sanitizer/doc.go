// Package sanitizer normalizes client-supplied identifiers before validation.
//
// Every function is idempotent. Invalid input is returned normalized rather
// than rejected; rejection is the validator's job.
package sanitizer
