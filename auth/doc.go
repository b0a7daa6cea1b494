// Package auth ties the user database, the password hasher and the
// session store together.
//
// A login looks up the user by email (case does not matter), verifies
// the password with Argon2id and only then opens a session. The session
// lives in memory, so restarting the service logs everyone out. That is
// fine, users simply login again.
//
// Callers never learn whether a login failed because the email is unknown
// or because the password is wrong, both cases return Unauthenticated.
package auth
