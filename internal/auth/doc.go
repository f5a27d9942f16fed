// Package auth provides user accounts and authentication.
//
// Passwords are hashed with Argon2id (PHC string format). A successful login
// yields a short-lived HS256 JWT carrying the user ID and admin flag; the
// HTTP layer verifies it by signature alone. WebSocket clients that cannot
// set headers trade a JWT for a single-use ticket from TicketStore.
//
// Authorisation beyond "is this an admin" lives in package access.
package auth
