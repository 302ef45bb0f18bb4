package exercise

// LoaderFunc validates a decoded settings document against one schema
// version and produces a Definition.
type LoaderFunc func(doc map[string]any) (*Definition, error)

type registryEntry struct {
	version string
	load    LoaderFunc
}

// The registry is append-only and ordered. Append new schema versions
// at the end; the latest version is the last entry.
var registry = []registryEntry{
	{version: SchemaVersionV1, load: loadV1},
}

// SupportedVersions lists schema versions in registration order.
func SupportedVersions() []string {
	versions := make([]string, len(registry))
	for i, entry := range registry {
		versions[i] = entry.version
	}
	return versions
}

// LatestVersion returns the most recently registered schema version.
func LatestVersion() string {
	return registry[len(registry)-1].version
}

func lookupLoader(version string) (LoaderFunc, bool) {
	for _, entry := range registry {
		if entry.version == version {
			return entry.load, true
		}
	}
	return nil, false
}
