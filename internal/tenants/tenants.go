// Package tenants enumerates the customer contexts the poller sweeps.
// The registry lives in a YAML file so operators can add or pause a tenant
// without a deploy.
package tenants

import (
	"context"
	"fmt"
	"os"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/validator"

	"gopkg.in/yaml.v3"
)

// Tenant is one isolated customer context.
type Tenant struct {
	ID     string `yaml:"id" validate:"required"`
	Name   string `yaml:"name" validate:"required"`
	Active bool   `yaml:"active"`
}

// Provider enumerates the tenants to poll.
type Provider interface {
	List(ctx context.Context) ([]Tenant, error)
}

type registryFile struct {
	Tenants []Tenant `yaml:"tenants"`
}

// FileProvider reads the registry from a YAML file on every List call, so
// edits take effect on the next poll sweep.
type FileProvider struct {
	path string
	val  *validator.Validator
}

// NewFileProvider creates a provider for the given registry file.
func NewFileProvider(path string, val *validator.Validator) *FileProvider {
	return &FileProvider{path: path, val: val}
}

// List returns the active tenants from the registry file.
func (p *FileProvider) List(_ context.Context) ([]Tenant, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read tenant registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tenant registry: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Tenants))
	active := make([]Tenant, 0, len(file.Tenants))
	for i, tenant := range file.Tenants {
		if err := p.val.Struct(tenant); err != nil {
			return nil, fmt.Errorf("tenant registry entry %d: %w", i, err)
		}
		if _, dup := seen[tenant.ID]; dup {
			return nil, fmt.Errorf("tenant registry entry %d: duplicate id %q", i, tenant.ID)
		}
		seen[tenant.ID] = struct{}{}
		if tenant.Active {
			active = append(active, tenant)
		}
	}

	return active, nil
}

// StaticProvider serves a fixed tenant list. Used by tests and tooling.
type StaticProvider struct {
	Tenants []Tenant
}

// List returns the fixed tenant list.
func (p *StaticProvider) List(_ context.Context) ([]Tenant, error) {
	return p.Tenants, nil
}
