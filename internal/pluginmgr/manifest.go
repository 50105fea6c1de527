package pluginmgr

import (
	"regexp"
	"strings"
)

const manifestVersion = "2"

// DependenciesPolicy constrains how a plugin may declare its
// dependencies.
type DependenciesPolicy string

const (
	DependenciesBundledOnly DependenciesPolicy = "bundled-only"
	DependenciesNone        DependenciesPolicy = "none"
)

// DistInfo describes the content-addressed deployable subtree.
type DistInfo struct {
	Hash       string `json:"hash"`
	FileCount  int    `json:"file_count"`
	TotalBytes int64  `json:"total_bytes"`
}

// Signature is the plugin author's signature over the manifest.
type Signature struct {
	Algorithm   string `json:"algorithm"`
	PublicKeyID string `json:"public_key_id"`
	Value       string `json:"value"`
}

// Manifest is the mcp-plugin.json document, manifestVersion "2".
type Manifest struct {
	ManifestVersion    string             `json:"manifestVersion"`
	Name               string             `json:"name"`
	Version            string             `json:"version"`
	Entry              string             `json:"entry"`
	DependenciesPolicy DependenciesPolicy `json:"dependenciesPolicy"`
	Dist               DistInfo           `json:"dist"`
	Signature          *Signature         `json:"signature,omitempty"`
}

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
var distHashPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// ValidateManifest checks every required field and collects all
// failures rather than returning on the first.
func ValidateManifest(m Manifest) *ValidationErrors {
	v := &ValidationErrors{}

	if m.ManifestVersion != manifestVersion {
		v.Add("manifestVersion must be %q, got %q", manifestVersion, m.ManifestVersion)
	}
	if strings.TrimSpace(m.Name) == "" {
		v.Add("name is required")
	}
	if !semverPattern.MatchString(m.Version) {
		v.Add("version %q is not valid semver", m.Version)
	}
	if strings.TrimSpace(m.Entry) == "" {
		v.Add("entry is required")
	}
	if m.DependenciesPolicy != DependenciesBundledOnly && m.DependenciesPolicy != DependenciesNone {
		v.Add("dependenciesPolicy must be %q or %q, got %q", DependenciesBundledOnly, DependenciesNone, m.DependenciesPolicy)
	}
	if !distHashPattern.MatchString(m.Dist.Hash) {
		v.Add("dist.hash must match sha256:<hex>, got %q", m.Dist.Hash)
	}

	return v
}

// ID returns the plugin's identity string, name@version.
func (m Manifest) ID() string {
	return m.Name + "@" + m.Version
}
