package exercise

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
)

// SettingsFileName is the settings document inside a definition
// directory.
const SettingsFileName = "setting.json"

// Parse decodes and validates a settings document, dispatching on its
// schema_version through the version registry.
func Parse(data []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, validationErrorf("settings document is not valid JSON: %v", err)
	}

	version, ok := doc["schema_version"].(string)
	if !ok {
		return nil, validationErrorf("settings document lacks a schema_version string")
	}
	load, ok := lookupLoader(version)
	if !ok {
		return nil, validationErrorf("schema_version %q does not exist (supported: %v)", version, SupportedVersions())
	}
	return load(doc)
}

// LoadDir reads and validates the settings document of a definition
// directory. Pure parse and validate, no side effects.
func LoadDir(dir string) (*Definition, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, validationErrorf("definition directory %q is required", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, SettingsFileName))
	if err != nil {
		return nil, validationErrorf("failed to read %s: %v", SettingsFileName, err)
	}
	return Parse(data)
}

// ValidateBundleDir runs LoadDir and additionally checks that every
// declared state's action script exists in the directory. Used when a
// definition bundle is uploaded, so a missing script is caught before
// any submission runs against it.
func ValidateBundleDir(dir string) (*Definition, error) {
	def, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for name, state := range def.States {
		scriptPath := filepath.Join(dir, state.Script)
		if info, err := os.Stat(scriptPath); err != nil || info.IsDir() {
			return nil, validationErrorf("state %q action script %q not found in bundle", name, state.Script)
		}
	}
	return def, nil
}
