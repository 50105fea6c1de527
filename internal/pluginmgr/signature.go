package pluginmgr

import (
	"crypto/ed25519"
	"encoding/base64"
)

// SignaturePolicy controls whether a plugin's manifest must carry a
// verifiable signature in order to load.
type SignaturePolicy struct {
	RequireSignature bool
	PublicKeys       map[string]ed25519.PublicKey // keyed by public_key_id
}

// verifySignature checks sig against signingInput (the manifest's
// canonical form minus the signature field) using the public key
// identified by sig.PublicKeyID. Ed25519 is the only algorithm this
// repository accepts.
func verifySignature(policy SignaturePolicy, sig *Signature, signingInput []byte) error {
	if sig == nil {
		return ErrUnsigned
	}
	if sig.Algorithm != "ed25519" {
		return ErrBadSignature
	}
	key, ok := policy.PublicKeys[sig.PublicKeyID]
	if !ok {
		return ErrBadSignature
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sig.Value)
	if err != nil {
		return ErrBadSignature
	}
	if !ed25519.Verify(key, signingInput, sigBytes) {
		return ErrBadSignature
	}
	return nil
}
