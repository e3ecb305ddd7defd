// Package sshkeys parses private SSH keys and derives their public halves.
//
// The central entry point is [DerivePublicKey], which turns raw private key
// bytes (PEM or OpenSSH format, optionally passphrase-protected) into the
// authorized_keys representation of the matching public key. It never returns
// an error: every parse, decrypt, or derivation failure is reported as ok=false
// so callers can treat "no result" uniformly, which is what the reconciler's
// failure-isolation contract requires.
//
// A record's declared key type is enforced as a cross-check: when the derived
// key's algorithm does not match the declared type, derivation is reported as
// failed rather than handing back a plausible-looking but wrong key.
//
// [Fingerprint] and [Algorithm] provide diagnostics over authorized_keys
// strings and are used when persisting repaired records.
package sshkeys
