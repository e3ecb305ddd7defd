package sshkeys

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Fingerprint calculates the SHA256 fingerprint of an SSH public key in
// authorized_keys format. Returns the standard "SHA256:xxx" form.
func Fingerprint(publicKey string) (string, error) {
	if publicKey == "" {
		return "", fmt.Errorf("get fingerprint: public key is empty")
	}

	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("get fingerprint: parse public key: %w", err)
	}

	return ssh.FingerprintSHA256(parsed), nil
}

// Algorithm returns the algorithm name (e.g. "ssh-ed25519") of an SSH public
// key in authorized_keys format.
func Algorithm(publicKey string) (string, error) {
	if publicKey == "" {
		return "", fmt.Errorf("get algorithm: public key is empty")
	}

	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("get algorithm: parse public key: %w", err)
	}

	return parsed.Type(), nil
}
