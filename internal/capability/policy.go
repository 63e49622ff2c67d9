// Package capability resolves which administrative capabilities a principal's
// roles grant, from a static YAML policy.
package capability

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/karani/model"
)

// Capability strings checked by the pipelines.
const (
	UsersDelete = "users:delete"
)

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// StaticPolicy maps roles to capability strings. Zero-value is an empty
// policy; use DefaultPolicy or NewStaticPolicy.
type StaticPolicy struct {
	path string
	mu   sync.RWMutex
	p    policyFile
}

// NewStaticPolicy creates a policy loaded from a YAML file.
func NewStaticPolicy(path string) (*StaticPolicy, error) {
	sp := &StaticPolicy{path: path}
	if err := sp.Sync(); err != nil {
		return nil, err
	}
	return sp, nil
}

// DefaultPolicy returns the built-in policy used when no file is configured:
// only the root membership may delete users.
func DefaultPolicy() *StaticPolicy {
	return &StaticPolicy{
		p: policyFile{Roles: map[string][]string{
			"root": {UsersDelete},
		}},
	}
}

// Allows reports whether any of the principal's roles grants the capability.
func (sp *StaticPolicy) Allows(rctx *model.RequestContext, capability string) bool {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	for _, role := range rctx.Roles {
		for _, c := range sp.p.Roles[role] {
			if c == capability {
				return true
			}
		}
	}
	return false
}

// Sync reloads the policy file from disk. No-op for the built-in policy.
func (sp *StaticPolicy) Sync() error {
	if sp.path == "" {
		return nil
	}

	data, err := os.ReadFile(sp.path)
	if err != nil {
		return fmt.Errorf("capability: reading policy file %s: %w", sp.path, err)
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("capability: parsing policy file %s: %w", sp.path, err)
	}

	sp.mu.Lock()
	sp.p = p
	sp.mu.Unlock()
	return nil
}
