package rule

import (
	"regexp"
	"sort"
	"strings"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/log"
)

// Support for deprecated rule scripts. Early models carried scripts with
// raw field accessors (workitem.budget[0], workitem['space.team']); these
// are rewritten into the canonical typed accessors before evaluation.

var bracketAccessPattern = regexp.MustCompile(`workitem\['[._\w]+'\]`)

// IsDeprecatedScript returns true if the script still uses the legacy
// accessor dialect.
func IsDeprecatedScript(script string) bool {
	if strings.Contains(script, "graalvm.languageId=nashorn") {
		return true
	}
	// any other language id marks a current script
	if strings.Contains(script, "graalvm.languageId=") {
		return false
	}

	// raw get( accessor => deprecated
	if strings.Contains(script, "workitem.get(") || strings.Contains(script, "event.get(") {
		return true
	}

	// canonical typed accessors mark a current script
	if strings.Contains(script, "workitem.Get") || strings.Contains(script, "event.Get") {
		return false
	}
	if strings.Contains(script, "workitem.HasItem") || strings.Contains(script, "workitem.IsItem") {
		return false
	}

	// remaining field access like workitem.budget indicates a deprecated script
	if strings.Contains(script, "workitem.") || strings.Contains(script, "event.") {
		return true
	}

	// bracket access like workitem['space.team']
	return bracketAccessPattern.MatchString(script)
}

// Rewrite converts a deprecated script into the canonical accessor form.
// Numeric items map to GetItemValueDouble, all others to
// GetItemValueString; bare field access becomes a HasItem check.
func Rewrite(script string, workitem, event *document.ItemCollection) string {
	original := script
	script = rewriteContext(script, workitem, "workitem")
	script = rewriteContext(script, event, "event")
	// a rewrite of workitem.ref(...) may leave a trailing [0] behind
	script = strings.ReplaceAll(script, ")[0]", ")")

	logger := log.WithComponent("rule")
	logger.Warn().
		Str("deprecated", original).
		Str("rewritten", script).
		Msg("deprecated rule script found - please replace it with the canonical form")
	return script
}

func rewriteContext(script string, doc *document.ItemCollection, contextName string) string {
	if doc == nil || contextName == "" {
		return script
	}
	itemNames := doc.ItemNames()

	// item names may be prefixes of one another ('team', 'team$approvers');
	// longer names must be replaced first
	sort.Slice(itemNames, func(i, j int) bool {
		return len(itemNames[i]) > len(itemNames[j])
	})

	for _, itemName := range itemNames {
		getter := contextName + ".GetItemValueString(\"" + itemName + "\")"
		if doc.IsItemValueNumeric(itemName) {
			getter = contextName + ".GetItemValueDouble(\"" + itemName + "\")"
		}
		hasItem := contextName + ".HasItem(\"" + itemName + "\")"

		// workitem.txtname[0] => typed getter
		script = strings.ReplaceAll(script, contextName+"."+itemName+"[0]", getter)
		// workitem['txtname'][0] => typed getter
		script = strings.ReplaceAll(script, contextName+"['"+itemName+"'][0]", getter)
		// workitem.txtname => existence check
		script = strings.ReplaceAll(script, contextName+"."+itemName, hasItem)
		// workitem['txtname'] => existence check
		script = strings.ReplaceAll(script, contextName+"['"+itemName+"']", hasItem)
	}

	// raw get( accessor falls back to the string getter
	script = strings.ReplaceAll(script, contextName+".get(", contextName+".GetItemValueString(")
	return script
}
