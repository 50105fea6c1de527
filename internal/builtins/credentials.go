package builtins

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/discoveryd/discoveryd/internal/registry"
	"github.com/discoveryd/discoveryd/internal/vault"
)

const credentialsModule = "credentials"

var credentialTypeEnum = []string{
	string(vault.TypePassword),
	string(vault.TypeAPIKey),
	string(vault.TypeSSHKey),
	string(vault.TypeOAuthToken),
	string(vault.TypeCertificate),
	string(vault.TypeCustom),
}

// RegisterCredentials wires credential_add/get/list/remove/rotate_key
// as tools owned by the "credentials" module.
func RegisterCredentials(ctx context.Context, r *registry.Registry, store *vault.Store) error {
	r.StartModule(credentialsModule, "vault", "")

	tools := []registry.ToolRecord{
		credentialAddTool(store),
		credentialGetTool(store),
		credentialListTool(store),
		credentialRemoveTool(store),
		credentialRotateKeyTool(store),
	}

	var regErr error
	for _, t := range tools {
		t.ModuleOrigin = credentialsModule
		if err := r.RegisterTool(t); err != nil {
			regErr = fmt.Errorf("registering %s: %w", t.Name, err)
			break
		}
	}

	return r.CompleteModule(credentialsModule, regErr)
}

func credentialAddTool(store *vault.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields: map[string]registry.Field{
			"id":   keyField(),
			"type": {Kind: registry.FieldString, Enum: credentialTypeEnum},
			"username": {Kind: registry.FieldString, Optional: true},
			"url":      {Kind: registry.FieldString, Optional: true},
			"fields": {Kind: registry.FieldObject, Shape: &registry.ObjectShape{
				Fields:     map[string]registry.Field{},
				Additional: registry.AdditionalAllow,
			}},
			"notes": {Kind: registry.FieldString, Optional: true},
		},
		Required: []string{"id", "type", "fields"},
	}
	return registry.ToolRecord{
		Name:        "credential_add",
		Description: "Store a new credential, encrypting each secret field under the active master key.",
		Category:    "credentials",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			id, err := requiredString(params, "id")
			if err != nil {
				return nil, err
			}
			typStr, err := requiredString(params, "type")
			if err != nil {
				return nil, err
			}
			username, _ := params["username"].(string)
			url, _ := params["url"].(string)
			notes, _ := params["notes"].(string)

			fieldsRaw, _ := params["fields"].(map[string]interface{})
			fields := make(map[string]string, len(fieldsRaw))
			for k, v := range fieldsRaw {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("field %q must be a string", k)
				}
				fields[k] = s
			}

			if err := store.Add(id, vault.CredentialType(typStr), username, url, fields, notes); err != nil {
				return nil, err
			}
			return textResult(map[string]interface{}{"id": id, "type": typStr})
		},
	}
}

func credentialGetTool(store *vault.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields:   map[string]registry.Field{"id": keyField()},
		Required: []string{"id"},
	}
	return registry.ToolRecord{
		Name:        "credential_get",
		Description: "Retrieve a credential's metadata and decrypted secret fields.",
		Category:    "credentials",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			id, err := requiredString(params, "id")
			if err != nil {
				return nil, err
			}
			cred, plain, err := store.Get(id)
			if err != nil {
				return nil, err
			}
			return textResult(map[string]interface{}{
				"id":       cred.ID,
				"type":     cred.Type,
				"username": cred.Username,
				"url":      cred.URL,
				"notes":    cred.Notes,
				"fields":   plain,
			})
		},
	}
}

func credentialListTool(store *vault.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields: map[string]registry.Field{
			"type": {Kind: registry.FieldString, Enum: credentialTypeEnum, Optional: true},
		},
	}
	return registry.ToolRecord{
		Name:        "credential_list",
		Description: "List non-sensitive credential metadata (id, type, username, url), optionally filtered by type.",
		Category:    "credentials",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			var typ *vault.CredentialType
			if t, ok := params["type"].(string); ok && t != "" {
				ct := vault.CredentialType(t)
				typ = &ct
			}
			return textResult(store.List(typ))
		},
	}
}

func credentialRemoveTool(store *vault.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields:   map[string]registry.Field{"id": keyField()},
		Required: []string{"id"},
	}
	return registry.ToolRecord{
		Name:        "credential_remove",
		Description: "Delete a credential by id.",
		Category:    "credentials",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			id, err := requiredString(params, "id")
			if err != nil {
				return nil, err
			}
			if err := store.Remove(id); err != nil {
				return nil, err
			}
			return textResult(map[string]interface{}{"id": id, "removed": true})
		},
	}
}

func credentialRotateKeyTool(store *vault.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields: map[string]registry.Field{
			"new_key": {Kind: registry.FieldString, Optional: true, Format: "base64"},
		},
	}
	return registry.ToolRecord{
		Name:        "credential_rotate_key",
		Description: "Rotate the vault's master key, re-encrypting every stored credential; aborts without persisting on any failure.",
		Category:    "credentials",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			var newKey []byte
			if k, ok := params["new_key"].(string); ok && k != "" {
				decoded, err := base64.StdEncoding.DecodeString(k)
				if err != nil {
					return nil, fmt.Errorf("new_key must be base64: %w", err)
				}
				newKey = decoded
			}
			if err := store.RotateKey(newKey); err != nil {
				return nil, err
			}
			return textResult(map[string]interface{}{"rotated": true})
		},
	}
}
