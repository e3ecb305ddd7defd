package sshkeys

import (
	"errors"
	"log"
	"strings"

	"github.com/keymend/keymend/internal/logutil"
	"golang.org/x/crypto/ssh"
)

// DerivePublicKey computes the authorized_keys form of the public key embedded
// in a private key. keyType is the record's declared algorithm ("ed25519",
// "rsa", "ecdsa", "dsa", or a full SSH algorithm name; empty accepts any).
// label is used for diagnostics only.
//
// ok is false on any failure: undecodable bytes, a wrong or missing
// passphrase, an unsupported format, or a derived key whose algorithm does not
// match the declared type. No error ever crosses this boundary.
func DerivePublicKey(privateKey []byte, keyType, passphrase, label string) (string, bool) {
	if len(privateKey) == 0 {
		return "", false
	}

	raw, err := ssh.ParseRawPrivateKey(privateKey)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if !errors.As(err, &missing) || passphrase == "" {
			log.Printf("derive public key for %q: parse private key: %v", logutil.SanitizeForLog(label), err)
			return "", false
		}
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(privateKey, []byte(passphrase))
		if err != nil {
			log.Printf("derive public key for %q: decrypt private key: %v", logutil.SanitizeForLog(label), err)
			return "", false
		}
	}

	signer, err := ssh.NewSignerFromKey(raw)
	if err != nil {
		log.Printf("derive public key for %q: signer from key: %v", logutil.SanitizeForLog(label), err)
		return "", false
	}

	pub := signer.PublicKey()
	if !algorithmMatches(keyType, pub.Type()) {
		log.Printf("derive public key for %q: derived %s key but record declares type %q", logutil.SanitizeForLog(label), pub.Type(), keyType)
		return "", false
	}

	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))), true
}

// algorithmMatches checks a derived key algorithm against the record's
// declared key type. Declared types may be short tags or full SSH algorithm
// names; an empty declaration accepts anything.
func algorithmMatches(keyType, algo string) bool {
	switch strings.ToLower(strings.TrimSpace(keyType)) {
	case "":
		return true
	case "ed25519":
		return algo == ssh.KeyAlgoED25519
	case "rsa":
		return algo == ssh.KeyAlgoRSA
	case "dsa":
		return algo == ssh.KeyAlgoDSA
	case "ecdsa":
		return algo == ssh.KeyAlgoECDSA256 || algo == ssh.KeyAlgoECDSA384 || algo == ssh.KeyAlgoECDSA521
	case "ecdsa-p256":
		return algo == ssh.KeyAlgoECDSA256
	case "ecdsa-p384":
		return algo == ssh.KeyAlgoECDSA384
	case "ecdsa-p521":
		return algo == ssh.KeyAlgoECDSA521
	default:
		// Full algorithm name, e.g. "ssh-ed25519".
		return strings.EqualFold(keyType, algo)
	}
}
