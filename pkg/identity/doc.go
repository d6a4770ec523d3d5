// Package identity is the account store the trust engine reads from.
//
// It owns users, their role, their device cap and their active flag, and
// verifies passwords with bcrypt. The trust engine never writes users; the
// status and device-cap edits here are called from the admin surface.
package identity
