// Package httpapi is the HTTP adapter for the authentication engine. It
// exposes the login protocol, session lifecycle, password reset, email
// verification, and MFA enrollment under /auth/v1, mapping engine outcomes
// to status codes so clients can branch without parsing messages.
package httpapi
