// Package api serves the fixture queries over HTTP with echo.
//
// Read routes live under /v1 and are public. Cache administration
// (invalidate, clear, list keys) requires an identity with the admin role,
// presented as a bearer JWT or an API key. Failures are answered as JSON
// {"error": kind, "message": ..., "request_id": ...} with the status the
// error kind maps to; every response carries an X-Request-ID.
package api
