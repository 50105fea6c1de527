package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/discoveryd/discoveryd/pkg/logging"
)

const (
	credsFileName = "credentials.json"
	keysFileName  = "master.keys.json"
	auditFileName = "credentials.audit.jsonl"
)

// storedKeyFile is the on-disk form of the key-history set.
type storedKeyFile struct {
	Keys []storedKey `json:"keys"`
}

type storedKey struct {
	KeyID     string    `json:"key_id"`
	Material  string    `json:"material"` // base64
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"` // "active" | "retired"
}

// Store is the Credential Vault: an encrypted at-rest key-value store
// with envelope key rotation and an append-only audit log. Writes
// (add/remove/rotate) are serialised by a single mutex, so a key
// rotation never races a concurrent write.
type Store struct {
	mu        sync.RWMutex
	dataDir   string
	credsPath string
	keysPath  string
	audit     *auditLog

	creds map[string]Credential
	keys  []EncryptionKey // oldest first; exactly one has Active == true
}

// Open loads (or initialises) the vault rooted at dataDir. If no key
// file exists yet, masterKeyB64 (MCP_CREDS_KEY) seeds the first active
// key when non-empty; otherwise a fresh 32-byte key is generated and
// persisted.
func Open(dataDir string, masterKeyB64 string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("vault: creating data dir: %w", err)
	}

	s := &Store{
		dataDir:   dataDir,
		credsPath: filepath.Join(dataDir, credsFileName),
		keysPath:  filepath.Join(dataDir, keysFileName),
		audit:     newAuditLog(filepath.Join(dataDir, auditFileName)),
		creds:     make(map[string]Credential),
	}

	if err := s.loadKeys(masterKeyB64); err != nil {
		return nil, err
	}
	if err := s.loadCreds(); err != nil {
		return nil, err
	}

	record(s.audit, ActionInitialize, "", true, "")
	return s, nil
}

func (s *Store) loadKeys(masterKeyB64 string) error {
	raw, err := os.ReadFile(s.keysPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("vault: reading key file: %w", err)
		}
		var material []byte
		if masterKeyB64 != "" {
			material, err = base64.StdEncoding.DecodeString(masterKeyB64)
			if err != nil || len(material) != 32 {
				return ErrInvalidKey
			}
		} else {
			material = make([]byte, 32)
			if _, err := io.ReadFull(rand.Reader, material); err != nil {
				return fmt.Errorf("vault: generating master key: %w", err)
			}
			logging.Info("Vault", "generated new master key")
		}
		s.keys = []EncryptionKey{{KeyID: uuid.NewString(), Material: material, CreatedAt: time.Now(), Active: true}}
		return s.persistKeys()
	}

	var file storedKeyFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("vault: malformed key file: %w", err)
	}
	for _, k := range file.Keys {
		material, err := base64.StdEncoding.DecodeString(k.Material)
		if err != nil || len(material) != 32 {
			return ErrInvalidKey
		}
		s.keys = append(s.keys, EncryptionKey{
			KeyID:     k.KeyID,
			Material:  material,
			CreatedAt: k.CreatedAt,
			Active:    k.Status == "active",
		})
	}
	return nil
}

func (s *Store) loadCreds() error {
	raw, err := os.ReadFile(s.credsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vault: reading credential store: %w", err)
	}
	return json.Unmarshal(raw, &s.creds)
}

// persistKeys and persistCreds write via a temp file + rename so a
// crash never leaves a half-written store on disk.
func (s *Store) persistKeys() error {
	file := storedKeyFile{}
	for _, k := range s.keys {
		status := "retired"
		if k.Active {
			status = "active"
		}
		file.Keys = append(file.Keys, storedKey{
			KeyID:     k.KeyID,
			Material:  base64.StdEncoding.EncodeToString(k.Material),
			CreatedAt: k.CreatedAt,
			Status:    status,
		})
	}
	return atomicWriteJSON(s.keysPath, file)
}

func (s *Store) persistCreds() error {
	return atomicWriteJSON(s.credsPath, s.creds)
}

func atomicWriteJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) activeKey() (EncryptionKey, error) {
	for _, k := range s.keys {
		if k.Active {
			return k, nil
		}
	}
	return EncryptionKey{}, fmt.Errorf("vault: no active key")
}

// decryptFields tries every key in the history set, newest first,
// against each stored field: every stored ciphertext must decrypt
// under some key in the history.
func (s *Store) decryptFields(stored map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(stored))
	for field, ciphertext := range stored {
		var plain string
		var ok bool
		for i := len(s.keys) - 1; i >= 0; i-- {
			p, err := decryptField(s.keys[i].Material, ciphertext)
			if err == nil {
				plain, ok = p, true
				break
			}
		}
		if !ok {
			return nil, ErrDecryption
		}
		out[field] = plain
	}
	return out, nil
}

// Add stores a new credential, encrypting every secret field under the
// currently active key.
func (s *Store) Add(id string, typ CredentialType, username, url string, fields map[string]string, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.creds[id]; exists {
		record(s.audit, ActionAdd, id, false, ErrDuplicate.Error())
		return ErrDuplicate
	}

	key, err := s.activeKey()
	if err != nil {
		record(s.audit, ActionAdd, id, false, err.Error())
		return err
	}

	encrypted := make(map[string]string, len(fields))
	for name, plain := range fields {
		ciphertext, err := encryptField(key.Material, plain)
		if err != nil {
			record(s.audit, ActionAdd, id, false, err.Error())
			return err
		}
		encrypted[name] = ciphertext
	}

	cred := Credential{
		ID:           id,
		Type:         typ,
		Username:     username,
		URL:          url,
		SecretFields: encrypted,
		Notes:        notes,
		CreatedAt:    time.Now(),
	}
	s.creds[id] = cred
	if err := s.persistCreds(); err != nil {
		delete(s.creds, id)
		record(s.audit, ActionAdd, id, false, err.Error())
		return err
	}

	record(s.audit, ActionAdd, id, true, "")
	return nil
}

// Get returns a credential's decrypted secret fields alongside its
// metadata.
func (s *Store) Get(id string) (Credential, map[string]string, error) {
	s.mu.RLock()
	cred, ok := s.creds[id]
	s.mu.RUnlock()
	if !ok {
		record(s.audit, ActionGet, id, false, ErrUnknown.Error())
		return Credential{}, nil, ErrUnknown
	}

	s.mu.RLock()
	plain, err := s.decryptFields(cred.SecretFields)
	s.mu.RUnlock()
	if err != nil {
		record(s.audit, ActionGet, id, false, err.Error())
		return Credential{}, nil, err
	}

	record(s.audit, ActionGet, id, true, "")
	return cred, plain, nil
}

// List returns non-sensitive metadata for every credential, optionally
// filtered by type.
func (s *Store) List(typ *CredentialType) []Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Metadata, 0, len(s.creds))
	for _, c := range s.creds {
		if typ != nil && c.Type != *typ {
			continue
		}
		out = append(out, Metadata{ID: c.ID, Type: c.Type, Username: c.Username, URL: c.URL})
	}
	return out
}

// Remove deletes a credential by id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[id]; !ok {
		record(s.audit, ActionRemove, id, false, ErrUnknown.Error())
		return ErrUnknown
	}
	removed := s.creds[id]
	delete(s.creds, id)
	if err := s.persistCreds(); err != nil {
		s.creds[id] = removed
		record(s.audit, ActionRemove, id, false, err.Error())
		return err
	}
	record(s.audit, ActionRemove, id, true, "")
	return nil
}

// RotateKey re-encrypts every stored credential under a new master
// key. newKey may be nil to generate a fresh random 32-byte key. All
// records are re-encrypted into a temporary buffer first; only once
// every record succeeds is the new key written to
// disk and the old key retired. Any failure aborts with the store
// left completely unchanged.
func (s *Store) RotateKey(newKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newKey == nil {
		newKey = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, newKey); err != nil {
			record(s.audit, ActionRotate, "", false, err.Error())
			return fmt.Errorf("vault: generating rotation key: %w", err)
		}
	} else if len(newKey) != 32 {
		record(s.audit, ActionRotate, "", false, ErrInvalidKey.Error())
		return ErrInvalidKey
	}

	reencrypted := make(map[string]Credential, len(s.creds))
	for id, cred := range s.creds {
		plain, err := s.decryptFields(cred.SecretFields)
		if err != nil {
			record(s.audit, ActionRotate, "", false, fmt.Sprintf("aborted: %s: %v", id, err))
			return ErrRotationAborted
		}
		fresh := make(map[string]string, len(plain))
		for field, value := range plain {
			ciphertext, err := encryptField(newKey, value)
			if err != nil {
				record(s.audit, ActionRotate, "", false, fmt.Sprintf("aborted: %s: %v", id, err))
				return ErrRotationAborted
			}
			fresh[field] = ciphertext
		}
		cred.SecretFields = fresh
		reencrypted[id] = cred
	}

	newKeyRecord := EncryptionKey{KeyID: uuid.NewString(), Material: newKey, CreatedAt: time.Now(), Active: true}
	updatedKeys := make([]EncryptionKey, len(s.keys), len(s.keys)+1)
	for i, k := range s.keys {
		k.Active = false
		updatedKeys[i] = k
	}
	updatedKeys = append(updatedKeys, newKeyRecord)

	prevCreds, prevKeys := s.creds, s.keys
	s.creds, s.keys = reencrypted, updatedKeys

	// Keys go first: until the credentials are rewritten, the old key
	// is still in the persisted history, so the on-disk store stays
	// readable. A failed credential write restores the old key file.
	if err := s.persistKeys(); err != nil {
		s.creds, s.keys = prevCreds, prevKeys
		record(s.audit, ActionRotate, "", false, err.Error())
		return ErrRotationAborted
	}
	if err := s.persistCreds(); err != nil {
		s.creds, s.keys = prevCreds, prevKeys
		_ = s.persistKeys()
		record(s.audit, ActionRotate, "", false, err.Error())
		return ErrRotationAborted
	}

	record(s.audit, ActionRotate, "", true, "")
	return nil
}

// AuditLog returns every recorded audit entry, oldest first.
func (s *Store) AuditLog() ([]AuditEntry, error) {
	return s.audit.readAll()
}
