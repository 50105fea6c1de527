// Package vault implements the Credential Vault: an encrypted at-rest
// store for discovery-tool credentials, with envelope key rotation and
// an append-only audit log.
//
// Each secret field is AES-256-CBC encrypted with a per-record random
// IV, keyed by the active master key. Retired keys stay in the history
// set so older ciphertexts remain readable until the next rotation
// re-encrypts them.
package vault
