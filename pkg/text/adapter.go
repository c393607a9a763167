package text

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flowmill/flowmill/pkg/document"
)

// The adapter resolves the template directives used in subject, body and
// report templates:
//
//	<itemvalue [format="…"] [separator="…"] [position="first|last"] [locale="xx_YY"]>itemName</itemvalue>
//	<date [DAY_OF_MONTH=n|ACTUAL_MAXIMUM] [DAY_OF_YEAR=n] [MONTH=n|ACTUAL_MAXIMUM] [YEAR=n] [ADD="FIELD,OFFSET"] />
//
// The <date> tag is evaluated relative to "now" and pre-expanded to a
// yyyyMMdd literal before the rest of the template is processed, so it can
// be embedded in report query strings.

var (
	itemValuePattern = regexp.MustCompile(`(?s)<itemvalue([^>]*)>(.+?)</itemvalue>`)
	dateTagPattern   = regexp.MustCompile(`<date([^>]*?)/>`)
	attributePattern = regexp.MustCompile(`([\w_]+)\s*=\s*(?:"([^"]*)"|([^\s"/>]+))`)
	singleItemTag    = regexp.MustCompile(`(?s)^<itemvalue([^>]*)>(.+?)</itemvalue>$`)
)

// Adapt resolves all directives in the template against the workitem.
func Adapt(template string, workitem *document.ItemCollection, now time.Time) string {
	result := expandDateTags(template, now)
	result = itemValuePattern.ReplaceAllStringFunc(result, func(tag string) string {
		match := itemValuePattern.FindStringSubmatch(tag)
		attrs := parseAttributes(match[1])
		itemName := strings.TrimSpace(match[2])
		return formatItem(workitem, itemName, attrs)
	})
	return result
}

// AdaptList resolves a template that may expand to a value list. A
// template consisting of a single <itemvalue> tag yields all values of the
// referenced item; any other template yields a one-element list with the
// adapted text.
func AdaptList(template string, workitem *document.ItemCollection, now time.Time) []string {
	trimmed := strings.TrimSpace(template)
	if match := singleItemTag.FindStringSubmatch(trimmed); match != nil {
		itemName := strings.TrimSpace(match[2])
		return workitem.GetItemValueStringList(itemName)
	}
	return []string{Adapt(template, workitem, now)}
}

func formatItem(workitem *document.ItemCollection, itemName string, attrs map[string]string) string {
	values := workitem.GetItemValue(itemName)
	if len(values) == 0 {
		return ""
	}

	format := attrs["format"]
	locale := attrs["locale"]

	if separator, ok := attrs["separator"]; ok {
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, formatValue(v, format, locale))
		}
		return strings.Join(parts, separator)
	}

	index := 0
	if strings.EqualFold(attrs["position"], "last") {
		index = len(values) - 1
	}
	return formatValue(values[index], format, locale)
}

func formatValue(value any, format, locale string) string {
	if t, ok := value.(time.Time); ok {
		if format == "" {
			return t.Format(time.RFC3339)
		}
		return localizeDate(t.Format(convertDatePattern(format)), locale)
	}
	if format != "" && strings.Contains(format, "#") {
		if f, ok := toFloat(value); ok {
			return formatNumber(f, format)
		}
	}
	return fmt.Sprint(value)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// expandDateTags replaces every <date .../> tag with a yyyyMMdd literal.
func expandDateTags(template string, now time.Time) string {
	return dateTagPattern.ReplaceAllStringFunc(template, func(tag string) string {
		match := dateTagPattern.FindStringSubmatch(tag)
		attrs := parseAttributes(match[1])
		return evalDateTag(attrs, now).Format("20060102")
	})
}

func evalDateTag(attrs map[string]string, now time.Time) time.Time {
	year, month, day := now.Date()
	m := int(month)

	if v, ok := attrs["YEAR"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			year = n
		}
	}
	if v, ok := attrs["MONTH"]; ok {
		if strings.EqualFold(v, "ACTUAL_MAXIMUM") {
			m = 12
		} else if n, err := strconv.Atoi(v); err == nil {
			m = n
		}
	}
	if v, ok := attrs["DAY_OF_MONTH"]; ok {
		if strings.EqualFold(v, "ACTUAL_MAXIMUM") {
			day = daysInMonth(year, time.Month(m))
		} else if n, err := strconv.Atoi(v); err == nil {
			day = n
		}
	}

	result := time.Date(year, time.Month(m), day, 0, 0, 0, 0, now.Location())

	if v, ok := attrs["DAY_OF_YEAR"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			result = time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location()).AddDate(0, 0, n-1)
		}
	}

	if v, ok := attrs["ADD"]; ok {
		parts := strings.SplitN(v, ",", 2)
		if len(parts) == 2 {
			if offset, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
				switch strings.ToUpper(strings.TrimSpace(parts[0])) {
				case "DAY_OF_MONTH", "DAY_OF_YEAR":
					result = result.AddDate(0, 0, offset)
				case "MONTH":
					result = result.AddDate(0, offset, 0)
				case "YEAR":
					result = result.AddDate(offset, 0, 0)
				}
			}
		}
	}
	return result
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func parseAttributes(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, match := range attributePattern.FindAllStringSubmatch(raw, -1) {
		value := match[2]
		if value == "" {
			value = match[3]
		}
		attrs[match[1]] = value
	}
	return attrs
}
