package dsl

import "fmt"

// RelationMode is the canonical value of the relation-mode axis.
type RelationMode int

const (
	// ModeForeignKeys enforces relations with database foreign keys.
	ModeForeignKeys RelationMode = iota
	// ModePrisma emulates relations in the client, without foreign keys.
	ModePrisma
)

// String returns the configuration value of the mode.
func (m RelationMode) String() string {
	if m == ModePrisma {
		return "prisma"
	}
	return "foreignKeys"
}

// ParseRelationMode parses a configuration value.
func ParseRelationMode(s string) (RelationMode, error) {
	switch s {
	case "prisma":
		return ModePrisma, nil
	case "foreignKeys":
		return ModeForeignKeys, nil
	}
	return 0, fmt.Errorf("invalid relation mode %q (must be \"prisma\" or \"foreignKeys\")", s)
}

// Configuration keys of the two surface syntaxes.
const (
	RelationModeKey         = "relationMode"
	ReferentialIntegrityKey = "referentialIntegrity"
)

// RelationModeSetting records the configured mode and the syntax it was written in.
type RelationModeSetting struct {
	Mode   RelationMode
	Legacy bool
	// Position is one plus the index of the key among the other datasource
	// properties. Zero places it after them.
	Position int
}

// LegacyReferentialIntegrity builds a setting written as referentialIntegrity = "...".
func LegacyReferentialIntegrity(mode RelationMode) *RelationModeSetting {
	return &RelationModeSetting{Mode: mode, Legacy: true}
}

// CurrentRelationMode builds a setting written as relationMode = "...".
func CurrentRelationMode(mode RelationMode) *RelationModeSetting {
	return &RelationModeSetting{Mode: mode}
}

// Key returns the configuration key of the setting's syntax.
func (s *RelationModeSetting) Key() string {
	if s.Legacy {
		return ReferentialIntegrityKey
	}
	return RelationModeKey
}

// Emulated reports whether relations are emulated rather than enforced.
// A nil setting means the default, enforced mode.
func (s *RelationModeSetting) Emulated() bool {
	return s != nil && s.Mode == ModePrisma
}
