package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/droverhq/drover/internal/ir"
)

// Marshal renders a document as canonical JSON with a trailing
// newline. Keys come out sorted and HTML is never escaped.
func Marshal(doc ir.Object) ([]byte, error) {
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile writes a document under dir as <name>.json and returns
// the path.
func WriteFile(dir, name string, doc ir.Object) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report dir: %w", err)
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
