package sms

import "strings"

var phoneCleaner = strings.NewReplacer(
	"-", "",
	" ", "",
	"(", "",
	")", "",
	".", "",
	"_", "",
)

// NormalizePhone strips the separators people type into the signup form
// and prefixes the US country code. Numbers already carrying +1 are left
// alone.
func NormalizePhone(raw string) string {
	clean := phoneCleaner.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(clean, "+1") {
		return clean
	}
	if strings.HasPrefix(clean, "1") && len(clean) == 11 {
		return "+" + clean
	}
	return "+1" + clean
}
