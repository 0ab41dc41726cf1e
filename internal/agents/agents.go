// Package agents holds the built-in agent catalogue. Each agent is one YAML
// file under definitions/, embedded at build time. Extra definitions can be
// loaded from a directory at startup.
package agents

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/strumhub/strumhub/agent-plane/internal/registry"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

//go:embed definitions/*.yaml
var builtin embed.FS

// Definition is an agent specification plus its static fallback text.
type Definition struct {
	models.AgentSpecification `yaml:",inline"`

	// Fallback is returned to the caller when execution fails.
	Fallback string `yaml:"fallback"`
}

// Builtin returns the embedded catalogue sorted by ID.
func Builtin() ([]Definition, error) {
	sub, err := fs.Sub(builtin, "definitions")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir reads every *.yaml and *.yml file in dir.
func LoadDir(dir string) ([]Definition, error) {
	return Load(os.DirFS(dir))
}

// Load decodes every YAML file at the root of fsys. Unknown fields are
// rejected so typos in a definition fail loudly.
func Load(fsys fs.FS) ([]Definition, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read agent definitions: %w", err)
	}

	var defs []Definition
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}

		var d Definition
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		d.Fallback = strings.TrimSpace(d.Fallback)
		defs = append(defs, d)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}

// Register adds every definition and its fallback to reg. It stops at the
// first invalid definition.
func Register(reg *registry.Registry, defs []Definition) error {
	for i := range defs {
		spec := defs[i].AgentSpecification
		if err := reg.Register(&spec); err != nil {
			return err
		}
		reg.SetFallback(spec.ID, defs[i].Fallback)
	}
	return nil
}

// RegisterDefaults registers the embedded catalogue, then any definitions
// in extraDir. An empty extraDir is skipped.
func RegisterDefaults(reg *registry.Registry, extraDir string) error {
	defs, err := Builtin()
	if err != nil {
		return err
	}
	if extraDir != "" {
		extra, err := LoadDir(extraDir)
		if err != nil {
			return err
		}
		defs = append(defs, extra...)
	}
	if err := Register(reg, defs); err != nil {
		return err
	}

	log.Info().Int("count", len(defs)).Msg("🎸 Agent catalogue registered")
	return nil
}
