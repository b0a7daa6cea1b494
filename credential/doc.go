// Package credential hashes and verifies passwords with Argon2id.
//
// Hashes are kept in the PHC string format, so the parameters used
// to derive a hash travel with it and older hashes keep verifying after
// DefaultParams changes.
//
// The package never imposes a password length, callers must validate
// input before asking for a hash.
package credential
