package enums

import (
	"fmt"
	"strings"
)

// Gender is the self-reported gender used for roommate grouping.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

func ParseGender(value string) (Gender, error) {
	g := Gender(strings.ToLower(strings.TrimSpace(value)))
	if !g.IsValid() {
		return "", fmt.Errorf("invalid gender %q", value)
	}
	return g, nil
}
