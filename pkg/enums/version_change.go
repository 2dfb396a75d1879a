package enums

import "fmt"

// VersionChangeType labels what produced an invoice version snapshot.
type VersionChangeType string

const (
	VersionCreated   VersionChangeType = "created"
	VersionFinalized VersionChangeType = "finalized"
	VersionEdited    VersionChangeType = "edited"
	VersionLocked    VersionChangeType = "locked"
	VersionDeleted   VersionChangeType = "deleted"
)

var validVersionChangeTypes = []VersionChangeType{
	VersionCreated,
	VersionFinalized,
	VersionEdited,
	VersionLocked,
	VersionDeleted,
}

func (v VersionChangeType) IsValid() bool {
	for _, candidate := range validVersionChangeTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

func ParseVersionChangeType(value string) (VersionChangeType, error) {
	for _, candidate := range validVersionChangeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid version change type %q", value)
}
