// Package middleware provides net/http middleware for guarding routes with
// lockstep sessions and access tokens.
package middleware
