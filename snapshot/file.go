package snapshot

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/argus-labs/tabletop/codec"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// ReadFile reads a document written as JSON, or as YAML when the file name ends in .yaml or .yml. A file holding
// a whole Snapshot is accepted too; its hash is verified and its document returned.
func ReadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	if isYAML(path) {
		return decodeYAML(raw)
	}
	if snap, ok := asSnapshot(raw); ok {
		if err := snap.Verify(); err != nil {
			return nil, err
		}
		return snap.Document, nil
	}
	return Decode(raw)
}

// WriteFile writes doc as YAML or indented JSON depending on the file name.
func WriteFile(path string, doc *Document) error {
	var (
		bz  []byte
		err error
	)
	if isYAML(path) {
		bz, err = yaml.Marshal(doc)
	} else {
		bz, err = Encode(doc)
	}
	if err != nil {
		return eris.Wrap(err, "failed to encode document")
	}
	return eris.Wrapf(os.WriteFile(path, bz, 0o600), "failed to write %s", path)
}

func decodeYAML(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(ErrInvalidDocument, err.Error())
	}
	// Round trip through JSON so YAML documents pass the same schema.
	bz, err := codec.Encode(&doc)
	if err != nil {
		return nil, err
	}
	return Decode(bz)
}

func asSnapshot(raw []byte) (*Snapshot, bool) {
	snap, err := codec.Decode[Snapshot](raw)
	if err != nil || snap.Document == nil {
		return nil, false
	}
	return &snap, true
}
