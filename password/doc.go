// Package password implements password hashing and verification.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Auto] also verifies bcrypt hashes ($2a$, $2b$, $2y$) so that rows written
// by earlier deployments keep working; [Auto.NeedsUpgrade] reports them so
// the caller can re-hash after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other deviceauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
