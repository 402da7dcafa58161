package iana

import "strings"

// Value sets whose codes come from the IANA registries.
const (
	MimeTypesValueSet      = "http://hl7.org/fhir/ValueSet/mimetypes"
	LanguagesValueSet      = "http://hl7.org/fhir/ValueSet/languages"
	AllLanguagesValueSet   = "http://hl7.org/fhir/ValueSet/all-languages"
	SimpleLanguageValueSet = "http://hl7.org/fhir/us/core/ValueSet/simple-language"
)

// NormalizeMediaType drops parameters and lower-cases a media type:
// "Text/HTML; charset=utf-8" becomes "text/html".
func NormalizeMediaType(code string) string {
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}
	return strings.ToLower(strings.TrimSpace(code))
}

// NormalizeLanguage applies the BCP 47 case conventions: language and
// most subtags lower case, script title case, region upper case. "_" is
// accepted as a separator.
func NormalizeLanguage(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return ""
	}
	subtags := strings.Split(tag, "-")
	singleton := false
	for i, s := range subtags {
		lower := strings.ToLower(s)
		switch {
		case i == 0 || singleton:
			subtags[i] = lower
		case len(s) == 1:
			singleton = true
			subtags[i] = lower
		case len(s) == 2 && isAlpha(s):
			subtags[i] = strings.ToUpper(s)
		case len(s) == 4 && isAlpha(s):
			subtags[i] = strings.ToUpper(lower[:1]) + lower[1:]
		default:
			subtags[i] = lower
		}
	}
	return strings.Join(subtags, "-")
}

// Normalizers maps code system and value set URLs to the normalizer that
// applies to codes validated against them.
func Normalizers() map[string]func(string) string {
	return map[string]func(string) string{
		MediaTypeSystem:        NormalizeMediaType,
		MimeTypesValueSet:      NormalizeMediaType,
		LanguageSystem:         NormalizeLanguage,
		LanguagesValueSet:      NormalizeLanguage,
		AllLanguagesValueSet:   NormalizeLanguage,
		SimpleLanguageValueSet: NormalizeLanguage,
	}
}
