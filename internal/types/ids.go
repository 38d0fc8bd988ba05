package types

import (
	"github.com/google/uuid"
)

// ruleNamespace seeds name-derived rule ids. Changing it changes every derived id.
var ruleNamespace = uuid.MustParse("6f1c7d2e-4b0a-4c55-9a3e-52d1b8f0c7aa")

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// RuleIDFromName derives a stable UUIDv5 rule identifier from a rule name.
// Rule files that omit ids get the same id on every reload.
func RuleIDFromName(name string) RuleID {
	return RuleID(uuid.NewSHA1(ruleNamespace, []byte(name)).String())
}

// ParseRuleID validates and converts a string to RuleID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseRuleID(s string) (RuleID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RuleID(u.String()), nil
}
