package enums

import "fmt"

// EvidenceType classifies the file reference attached to a dispute.
type EvidenceType string

const (
	EvidenceTypeImage    EvidenceType = "IMAGE"
	EvidenceTypeDocument EvidenceType = "DOCUMENT"
	EvidenceTypeVideo    EvidenceType = "VIDEO"
	EvidenceTypeOther    EvidenceType = "OTHER"
)

var validEvidenceTypes = []EvidenceType{
	EvidenceTypeImage,
	EvidenceTypeDocument,
	EvidenceTypeVideo,
	EvidenceTypeOther,
}

func (e EvidenceType) IsValid() bool {
	for _, candidate := range validEvidenceTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEvidenceType converts raw input into an EvidenceType.
func ParseEvidenceType(value string) (EvidenceType, error) {
	for _, candidate := range validEvidenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid evidence type %q", value)
}
