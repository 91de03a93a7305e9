package gamedata

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

type ChangeKind uint8

const (
	ChangeUnknown ChangeKind = iota
	ChangeCreate
	ChangeDelete
	ChangeSetName
	ChangeSetAttribute
	ChangeDeleteAttribute
	ChangeSetList
	ChangeListAdd
	ChangeListRemove
	ChangeRemoveBlock
	ChangeRenameBlock
	ChangeCopyBlock
	ChangeHoldAdd
	ChangeHoldRemove
	ChangeBumpVersion
)

var changeKindNames = [...]string{
	ChangeUnknown:         "unknown",
	ChangeCreate:          "create",
	ChangeDelete:          "delete",
	ChangeSetName:         "set-name",
	ChangeSetAttribute:    "set-attribute",
	ChangeDeleteAttribute: "delete-attribute",
	ChangeSetList:         "set-list",
	ChangeListAdd:         "list-add",
	ChangeListRemove:      "list-remove",
	ChangeRemoveBlock:     "remove-block",
	ChangeRenameBlock:     "rename-block",
	ChangeCopyBlock:       "copy-block",
	ChangeHoldAdd:         "hold-add",
	ChangeHoldRemove:      "hold-remove",
	ChangeBumpVersion:     "bump-version",
}

// String returns the wire name of k, as used in JSON.
func (k ChangeKind) String() string {
	if int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return changeKindNames[ChangeUnknown]
}

// IsValid reports whether k names a known change kind.
func (k ChangeKind) IsValid() bool {
	return k > ChangeUnknown && int(k) < len(changeKindNames)
}

// holds reports whether records of this kind name a contained entity in Child.
func (k ChangeKind) holds() bool {
	return k == ChangeHoldAdd || k == ChangeHoldRemove
}

// ParseChangeKind is the inverse of ChangeKind.String.
func ParseChangeKind(s string) (ChangeKind, error) {
	for i, name := range changeKindNames {
		if ChangeKind(i) != ChangeUnknown && name == s {
			return ChangeKind(i), nil
		}
	}
	return ChangeUnknown, eris.Wrapf(ErrUnknownChangeKind, "%q", s)
}

func (k ChangeKind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, eris.Wrapf(ErrUnknownChangeKind, "%d", k)
	}
	return []byte(k.String()), nil
}

func (k *ChangeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseChangeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Change is one replayable mutation of one entity. ID, Name and Version fingerprint the target as it was when
// the change was recorded; the remaining fields are the payload of the kind.
type Change struct {
	Seq     uint64     `json:"seq"`
	Kind    ChangeKind `json:"kind"`
	ID      ID         `json:"id"`
	Name    string     `json:"name,omitempty"`
	Version int64      `json:"version"`

	Block string   `json:"block,omitempty"`
	Key   string   `json:"key,omitempty"`
	Value string   `json:"value,omitempty"`
	Items []string `json:"items,omitempty"`
	Clear bool     `json:"clear,omitempty"`

	// Target is the destination block of a rename or copy.
	Target string `json:"target,omitempty"`
	// Child is the contained entity of a hold change.
	Child ID `json:"child,omitempty"`
}

// String renders c in a compact form for logs.
func (c Change) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s %d@%d", c.Seq, c.Kind, c.ID, c.Version)
	switch c.Kind {
	case ChangeSetName:
		fmt.Fprintf(&sb, " %q", c.Value)
	case ChangeSetAttribute:
		fmt.Fprintf(&sb, " %s.%s=%q", c.Block, c.Key, c.Value)
	case ChangeDeleteAttribute:
		fmt.Fprintf(&sb, " %s.%s", c.Block, c.Key)
	case ChangeSetList, ChangeListAdd, ChangeListRemove:
		fmt.Fprintf(&sb, " %s.%s clear=%t %q", c.Block, c.Key, c.Clear, c.Items)
	case ChangeRemoveBlock:
		fmt.Fprintf(&sb, " %s", c.Block)
	case ChangeRenameBlock, ChangeCopyBlock:
		fmt.Fprintf(&sb, " %s->%s", c.Block, c.Target)
	case ChangeHoldAdd, ChangeHoldRemove:
		fmt.Fprintf(&sb, " child=%d", c.Child)
	case ChangeUnknown, ChangeCreate, ChangeDelete, ChangeBumpVersion:
	}
	return sb.String()
}
