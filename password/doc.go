// Package password hashes and verifies account passwords.
//
// New hashes are argon2id in PHC string form. Hashes written by the previous
// bcrypt-based service (cost 10, "$2a$"/"$2b$"/"$2y$" prefixes) still verify
// and are reported by [Hasher.NeedsUpgrade] so callers can rehash on the next
// successful login.
package password
