package text

import (
	"strconv"
	"strings"
)

// datePatternTokens maps the template date tokens (yyyy-MM-dd style, kept
// for compatibility with existing model files) to Go reference layouts.
// Longer tokens first so "MMMM" is not consumed as two "MM".
var datePatternTokens = []struct {
	token  string
	layout string
}{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
	{"EEEE", "Monday"},
	{"EEE", "Mon"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
	{"a", "PM"},
	{"z", "MST"},
}

func convertDatePattern(pattern string) string {
	var sb strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, tok := range datePatternTokens {
			if strings.HasPrefix(pattern[i:], tok.token) {
				sb.WriteString(tok.layout)
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			sb.WriteByte(pattern[i])
			i++
		}
	}
	return sb.String()
}

var germanNames = map[string]string{
	"January": "Januar", "February": "Februar", "March": "März",
	"May": "Mai", "June": "Juni", "July": "Juli", "October": "Oktober",
	"December": "Dezember",
	"Monday":   "Montag", "Tuesday": "Dienstag", "Wednesday": "Mittwoch",
	"Thursday": "Donnerstag", "Friday": "Freitag", "Saturday": "Samstag",
	"Sunday": "Sonntag",
}

// localizeDate translates month and weekday names for the few locales the
// original model files use; anything else stays English.
func localizeDate(formatted, locale string) string {
	lang := strings.ToLower(locale)
	if idx := strings.IndexAny(lang, "_-"); idx >= 0 {
		lang = lang[:idx]
	}
	if lang != "de" {
		return formatted
	}
	for en, de := range germanNames {
		formatted = strings.ReplaceAll(formatted, en, de)
	}
	return formatted
}

// formatNumber renders a float using a '#'-style decimal pattern such as
// "#,##0.00" or "#.##0,00" (grouping and decimal separators inferred from
// the pattern itself).
func formatNumber(value float64, pattern string) string {
	groupSep, decimalSep := ",", "."
	decimals := 0
	if idx := strings.LastIndexAny(pattern, ".,"); idx >= 0 {
		tail := pattern[idx+1:]
		if strings.Count(tail, "0")+strings.Count(tail, "#") == len(tail) && len(tail) > 0 {
			decimalSep = string(pattern[idx])
			decimals = len(tail)
			if decimalSep == "," {
				groupSep = "."
			}
		}
	}

	formatted := strconv.FormatFloat(value, 'f', decimals, 64)
	intPart := formatted
	fracPart := ""
	if idx := strings.IndexByte(formatted, '.'); idx >= 0 {
		intPart, fracPart = formatted[:idx], formatted[idx+1:]
	}

	negative := strings.HasPrefix(intPart, "-")
	if negative {
		intPart = intPart[1:]
	}

	grouped := intPart
	if strings.Contains(pattern, groupSep) {
		var parts []string
		for len(intPart) > 3 {
			parts = append([]string{intPart[len(intPart)-3:]}, parts...)
			intPart = intPart[:len(intPart)-3]
		}
		parts = append([]string{intPart}, parts...)
		grouped = strings.Join(parts, groupSep)
	}

	result := grouped
	if fracPart != "" {
		result += decimalSep + fracPart
	}
	if negative {
		result = "-" + result
	}
	return result
}
