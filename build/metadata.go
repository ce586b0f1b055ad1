package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/latticeml/forge/discover"
	"github.com/latticeml/forge/envconfig"
	"github.com/latticeml/forge/version"
)

// Metadata is the record of how a build was configured, written into the
// installed package so bug reports can tell us what was actually built.
type Metadata struct {
	BuildID  string            `json:"build_id"`
	Date     string            `json:"date"`
	Versions map[string]string `json:"version"`
	Env      map[string]string `json:"env"`
}

func newMetadata(tc discover.Toolchain, flashVersion string) Metadata {
	return Metadata{
		BuildID: uuid.New().String(),
		Date:    time.Now().UTC().Format(time.RFC3339),
		Versions: map[string]string{
			"backend": string(tc.Backend),
			"toolkit": tc.Version,
			"flash":   flashVersion,
			"forge":   version.Version,
			"go":      runtime.Version(),
		},
		Env: envconfig.Snapshot(),
	}
}

// Plan is the complete configuration handed to the packaging toolchain.
type Plan struct {
	Version    string             `json:"version"`
	Toolchain  discover.Toolchain `json:"toolchain"`
	Extensions []Extension        `json:"extensions"`
	Metadata   Metadata           `json:"metadata"`
}

const (
	planFile     = "build_plan.json"
	metadataFile = "cpp_lib.json"
	stampFile    = "version.txt"
)

// WriteArtifacts writes the build plan and the two generated package
// artifacts (metadata record and version stamp) into dir.
func (p *Plan) WriteArtifacts(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, planFile), p); err != nil {
		return fmt.Errorf("write build plan: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), p.Metadata); err != nil {
		return fmt.Errorf("write build metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stampFile), []byte(version.Stamp(p.Version)), 0o644); err != nil {
		return fmt.Errorf("write version stamp: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}
