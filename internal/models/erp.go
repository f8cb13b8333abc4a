package models

import (
	"fmt"
	"strings"
)

// MappingScope is the transaction attribute an ERP mapping keys on
type MappingScope string

const (
	ScopeDefault     MappingScope = "Default"
	ScopeModule      MappingScope = "Module"
	ScopeMarketplace MappingScope = "Marketplace"
	ScopeVendor      MappingScope = "Vendor"
)

// DefaultMappingKey is the key carried by Default-scoped mappings
const DefaultMappingKey = "*"

// IsValid checks if the scope is known
func (s MappingScope) IsValid() bool {
	switch s {
	case ScopeDefault, ScopeModule, ScopeMarketplace, ScopeVendor:
		return true
	}
	return false
}

// ErpMapping resolves transactions to general-ledger coding for export
type ErpMapping struct {
	ID         string       `json:"id" mapstructure:"id"`
	Scope      MappingScope `json:"scope" mapstructure:"scope"`
	Key        string       `json:"key" mapstructure:"key"`
	GLCode     string       `json:"glCode" mapstructure:"gl_code" validate:"required"`
	CostCenter string       `json:"costCenter" mapstructure:"cost_center"`
	TaxCode    string       `json:"taxCode" mapstructure:"tax_code"`
	Enabled    bool         `json:"enabled" mapstructure:"enabled"`
}

// Validate performs basic validation on the ErpMapping
func (m *ErpMapping) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("mapping ID cannot be empty")
	}
	if !m.Scope.IsValid() {
		return fmt.Errorf("invalid mapping scope: %s", m.Scope)
	}
	if m.Scope == ScopeDefault && m.Key != DefaultMappingKey {
		return fmt.Errorf("default mapping key must be %q", DefaultMappingKey)
	}
	if strings.TrimSpace(m.Key) == "" {
		return fmt.Errorf("mapping key cannot be empty")
	}
	return ValidateStruct(m)
}

// DefaultMappings returns the mapping set used when none is configured
func DefaultMappings() []ErpMapping {
	return []ErpMapping{
		{ID: "map-default", Scope: ScopeDefault, Key: DefaultMappingKey, GLCode: "6000", CostCenter: "CC-GEN", TaxCode: "VAT18", Enabled: true},
		{ID: "map-rides", Scope: ScopeModule, Key: "Rides", GLCode: "6100", CostCenter: "CC-TRAVEL", TaxCode: "VAT18", Enabled: true},
		{ID: "map-ecommerce", Scope: ScopeModule, Key: "E-Commerce", GLCode: "6200", CostCenter: "CC-PROC", TaxCode: "VAT18", Enabled: true},
		{ID: "map-evmart", Scope: ScopeMarketplace, Key: "EVmart", GLCode: "6210", CostCenter: "CC-PROC", TaxCode: "VAT18", Enabled: true},
		{ID: "map-evzone-rides", Scope: ScopeVendor, Key: "EVzone Rides", GLCode: "6110", CostCenter: "CC-TRAVEL", TaxCode: "VAT18", Enabled: true},
	}
}
