package allergy

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var allergenTypeTokens = map[string]AllergenType{
	"med":           AllergenMedication,
	"medication":    AllergenMedication,
	"food":          AllergenFood,
	"env":           AllergenEnvironmental,
	"environmental": AllergenEnvironmental,
	"other":         AllergenOther,
}

var severityTokens = map[string]Severity{
	"mild":             SeverityMild,
	"moderate":         SeverityModerate,
	"severe":           SeveritySevere,
	"life":             SeverityLifeThreatening,
	"life_threatening": SeverityLifeThreatening,
	"life-threatening": SeverityLifeThreatening,
}

// ParseAllergenType decodes a case-insensitive allergen type token.
func ParseAllergenType(token string) (AllergenType, bool) {
	t, ok := allergenTypeTokens[strings.ToLower(strings.TrimSpace(token))]
	return t, ok
}

// ParseSeverity decodes a case-insensitive severity token.
func ParseSeverity(token string) (Severity, bool) {
	s, ok := severityTokens[strings.ToLower(strings.TrimSpace(token))]
	return s, ok
}

// normalizeName puts an allergen or drug name into NFC so that canonically
// equivalent spellings compare equal. Case is preserved.
func normalizeName(s string) string {
	return norm.NFC.String(s)
}
