package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"
)

// document mirrors the on-disk policy shape.
type document struct {
	ID            string         `yaml:"id"`
	Version       scalar         `yaml:"version"`
	DefaultIntent string         `yaml:"default_intent"`
	EndIntents    *[]string      `yaml:"end_intents"`
	Intents       []intentDoc    `yaml:"intents"`
	Guidelines    []guidelineDoc `yaml:"guidelines"`
	Guards        []guardDoc     `yaml:"guards"`
}

type intentDoc struct {
	ID            string   `yaml:"id"`
	Description   string   `yaml:"description"`
	RequiredSlots []string `yaml:"required_slots"`
	AllowedNext   []string `yaml:"allowed_next"`
	HumanApproval string   `yaml:"human_approval"`
}

type guidelineDoc struct {
	ID     string `yaml:"id"`
	When   string `yaml:"when"`
	Do     string `yaml:"do"`
	Weight *int   `yaml:"weight"`
}

type guardDoc struct {
	ID     string         `yaml:"id"`
	Kind   string         `yaml:"kind"`
	Mode   string         `yaml:"mode"`
	Params map[string]any `yaml:"params"`
}

// scalar keeps the literal text of a YAML scalar, so "version: 1.0" stays "1.0".
type scalar string

func (s *scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", n.Line)
	}
	*s = scalar(n.Value)
	return nil
}

// DefaultPath returns ~/.turnguard/policy.yaml, or "" when HOME is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".turnguard", "policy.yaml")
}

// Parse validates a YAML policy document against the policy schema and
// builds a Policy. Guard order is preserved exactly.
func Parse(data []byte) (*Policy, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policy: parse yaml: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: decode: %w", err)
	}

	p := &Policy{
		ID:            doc.ID,
		Version:       string(doc.Version),
		Intents:       make(map[string]Intent, len(doc.Intents)),
		IntentOrder:   make([]string, 0, len(doc.Intents)),
		Guards:        make([]GuardRule, 0, len(doc.Guards)),
		Guidelines:    make([]Guideline, 0, len(doc.Guidelines)),
		DefaultIntent: doc.DefaultIntent,
	}
	if p.Version == "" {
		p.Version = "0"
	}
	if p.DefaultIntent == "" {
		p.DefaultIntent = DefaultStartIntent
	}
	if doc.EndIntents != nil {
		p.EndIntents = append([]string{}, (*doc.EndIntents)...)
	} else {
		p.EndIntents = []string{DefaultEndIntent}
	}

	for _, it := range doc.Intents {
		if _, dup := p.Intents[it.ID]; dup {
			return nil, fmt.Errorf("policy: duplicate intent id %q", it.ID)
		}
		next := it.AllowedNext
		if next == nil {
			next = []string{}
		}
		p.Intents[it.ID] = Intent{
			ID:            it.ID,
			Description:   it.Description,
			RequiredSlots: it.RequiredSlots,
			AllowedNext:   next,
			HumanApproval: it.HumanApproval,
		}
		p.IntentOrder = append(p.IntentOrder, it.ID)
	}

	for _, g := range doc.Guidelines {
		weight := 1
		if g.Weight != nil {
			weight = *g.Weight
		}
		p.Guidelines = append(p.Guidelines, Guideline{ID: g.ID, When: g.When, Do: g.Do, Weight: weight})
	}

	for _, g := range doc.Guards {
		id := g.ID
		if id == "" {
			id = g.Kind
		}
		p.Guards = append(p.Guards, GuardRule{ID: id, Kind: g.Kind, Mode: g.Mode, Params: g.Params})
	}

	return p, nil
}

// Load reads and parses a policy file.
// Empty path falls back to ~/.turnguard/policy.yaml; when that file does not
// exist the built-in policy is returned. An explicit path must exist.
func Load(path string) (*Policy, error) {
	p, _, err := LoadWithHash(path)
	return p, err
}

// LoadWithHash loads a policy and returns its content hash (see Hash).
func LoadWithHash(path string) (*Policy, string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
	}
	if path == "" || err != nil {
		if !explicit && (path == "" || errors.Is(err, os.ErrNotExist)) {
			p := Default()
			h, herr := Hash(p)
			if herr != nil {
				return nil, "", herr
			}
			return p, h, nil
		}
		return nil, "", fmt.Errorf("policy: read %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	h, err := Hash(p)
	if err != nil {
		return nil, "", err
	}
	return p, h, nil
}

// Hash returns "sha256:<hex>" over the RFC 8785 canonical JSON form of p.
// Reformatting or reordering the YAML mapping keys leaves the hash unchanged.
func Hash(p *Policy) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("policy: marshal for hash: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("policy: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
