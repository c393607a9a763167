package acl

import (
	"strings"
	"time"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/log"
	"github.com/flowmill/flowmill/pkg/model"
	"github.com/flowmill/flowmill/pkg/text"
	"github.com/flowmill/flowmill/pkg/types"
)

// Model annotation items evaluated on events and tasks.
const (
	itemUpdateACL       = "keyupdateacl"
	itemReadNames       = "namaddreadaccess"
	itemWriteNames      = "namaddwriteaccess"
	itemReadFields      = "keyaddreadfields"
	itemWriteFields     = "keyaddwritefields"
	itemOwnershipNames  = "namownershipnames"
	itemOwnershipFields = "keyownershipfields"
)

// Update recomputes $readaccess, $writeaccess and $owner on the workitem
// from the annotations of the processed event and the next task. When the
// event carries keyupdateacl=true its annotations win outright; otherwise
// the task's apply. Without the flag on either element the lists stay
// untouched.
//
// The lists are replaced, never merged: clearing an ACL by annotating an
// element with keyupdateacl=true and empty name lists is a supported
// model pattern.
func Update(workitem *document.ItemCollection, event *model.Event, task *model.Task) error {
	var source *document.ItemCollection
	switch {
	case event != nil && event.Items.GetItemValueBoolean(itemUpdateACL):
		source = event.Items
	case task != nil && task.Items.GetItemValueBoolean(itemUpdateACL):
		source = task.Items
	default:
		return nil
	}

	now := time.Now()
	read := resolveNames(source, itemReadNames, itemReadFields, workitem, now)
	write := resolveNames(source, itemWriteNames, itemWriteFields, workitem, now)
	owner := resolveNames(source, itemOwnershipNames, itemOwnershipFields, workitem, now)

	if err := workitem.ReplaceItemValue(types.ItemReadAccess, read); err != nil {
		return err
	}
	if err := workitem.ReplaceItemValue(types.ItemWriteAccess, write); err != nil {
		return err
	}
	// $owner mirrors to the legacy namowner item on write
	if err := workitem.ReplaceItemValue(types.ItemOwner, owner); err != nil {
		return err
	}

	log.WithWorkitemID(workitem.UniqueID()).Debug().
		Strs("read", read).Strs("write", write).Strs("owner", owner).
		Msg("access lists updated")
	return nil
}

// AddParticipant records the caller identity of a processing step.
// $participants is append-only and duplicate-free.
func AddParticipant(workitem *document.ItemCollection, caller string) error {
	if caller == "" {
		return nil
	}
	return workitem.AppendItemValueUnique(types.ItemParticipants, caller)
}

// resolveNames builds one access list from a (names, fields) annotation
// pair. Names run through text substitution and may expand to lists;
// fields reference workitem items, except bracketed specs which are
// inline literal lists. The result is de-duplicated preserving first
// occurrence, empty entries dropped.
func resolveNames(source *document.ItemCollection, namesItem, fieldsItem string, workitem *document.ItemCollection, now time.Time) []string {
	var merged []string
	for _, name := range source.GetItemValueStringList(namesItem) {
		merged = append(merged, text.AdaptList(name, workitem, now)...)
	}
	for _, field := range source.GetItemValueStringList(fieldsItem) {
		field = strings.TrimSpace(field)
		if literals, ok := inlineLiterals(field); ok {
			merged = append(merged, literals...)
			continue
		}
		merged = append(merged, workitem.GetItemValueStringList(field)...)
	}
	return uniqueNonEmpty(merged)
}

// inlineLiterals parses a field spec of the form [a,b] or {a,b}.
func inlineLiterals(field string) ([]string, bool) {
	if len(field) < 2 {
		return nil, false
	}
	first, last := field[0], field[len(field)-1]
	if !(first == '[' && last == ']') && !(first == '{' && last == '}') {
		return nil, false
	}
	var literals []string
	for _, entry := range strings.Split(field[1:len(field)-1], ",") {
		literals = append(literals, strings.TrimSpace(entry))
	}
	return literals, true
}

func uniqueNonEmpty(names []string) []string {
	seen := make(map[string]bool, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}
	return result
}
