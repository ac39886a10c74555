package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Load reads a static catalog file: a JSON array of ServerDefinitions,
// parsed as JWCC (JSON-with-comments, via hujson) so maintainers can
// annotate catalog entries, then standardized to plain JSON before
// unmarshaling.
func Load(path string) ([]ServerDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes catalog bytes that may contain JWCC comments/trailing
// commas. An entry whose "command" is the literal string "http" is accepted
// as legacy shorthand for transport "http", kept for compatibility with
// hand-authored catalog entries that predate the transport field.
func Parse(raw []byte) ([]ServerDefinition, error) {
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: parsing JWCC: %w", err)
	}

	var entries []ServerDefinition
	dec := json.NewDecoder(bytes.NewReader(standardized))
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("catalog: decoding entries: %w", err)
	}

	for i := range entries {
		if entries[i].Transport == "" && entries[i].Command == "http" {
			entries[i].Transport = TransportHTTP
		}
		if err := entries[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog: entry %q: %w", entries[i].Name, err)
		}
	}
	return entries, nil
}
