// Package middleware provides net/http middleware around the engine:
// request-context enrichment (resolved client IP, user agent) and a session
// guard for authenticated routes. It works with any chi- or stdlib-style
// router.
package middleware
