package snapshot

import (
	"cmp"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/wI2L/jsondiff"

	"github.com/argus-labs/tabletop/codec"
)

//go:embed schema.json
var schemaSource string

var documentSchema = jsonschema.MustCompileString("schema.json", schemaSource)

// Encode writes doc as indented JSON.
func Encode(doc *Document) ([]byte, error) {
	bz, err := codec.EncodeIndent(doc)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode snapshot document")
	}
	return bz, nil
}

// Decode validates bz against the document schema before decoding it.
func Decode(bz []byte) (*Document, error) {
	if err := Validate(bz); err != nil {
		return nil, err
	}
	doc, err := codec.Decode[Document](bz)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decode snapshot document")
	}
	return &doc, nil
}

// Validate checks bz against the document schema.
func Validate(bz []byte) error {
	var v any
	if err := json.Unmarshal(bz, &v); err != nil {
		return eris.Wrap(ErrInvalidDocument, err.Error())
	}
	if err := documentSchema.Validate(v); err != nil {
		return eris.Wrap(ErrInvalidDocument, err.Error())
	}
	return nil
}

// Hash returns the hex sha256 of the compact encoding of doc. Setups are part of the hash.
func Hash(doc *Document) (string, error) {
	bz, err := codec.Encode(doc)
	if err != nil {
		return "", eris.Wrap(err, "failed to encode snapshot document")
	}
	sum := sha256.Sum256(bz)
	return hex.EncodeToString(sum[:]), nil
}

// Compare returns the JSON patch that turns from into to.
func Compare(from, to *Document) (jsondiff.Patch, error) {
	a, err := codec.Encode(from)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode source document")
	}
	b, err := codec.Encode(to)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode target document")
	}
	patch, err := jsondiff.CompareJSON(a, b)
	if err != nil {
		return nil, eris.Wrap(err, "failed to compare snapshot documents")
	}
	return patch, nil
}

// Digest hashes the order-insensitive content of doc: objects by id, blocks by name, attributes by key and
// holds by id, with versions and setups left out. Two stores that converged through reconciliation have the
// same digest even when their versions or orderings differ.
func Digest(doc *Document) (string, error) {
	objects := make([]Object, 0, len(doc.Objects))
	for _, obj := range doc.Objects {
		c := Object{ID: obj.ID, Name: obj.Name, Hold: slices.Clone(obj.Hold)}
		slices.Sort(c.Hold)
		for _, b := range obj.Blocks {
			attrs := slices.Clone(b.Attributes)
			slices.SortFunc(attrs, func(x, y AttributeDoc) int { return strings.Compare(x.Key, y.Key) })
			c.Blocks = append(c.Blocks, BlockDoc{Name: b.Name, Attributes: attrs})
		}
		slices.SortFunc(c.Blocks, func(x, y BlockDoc) int { return strings.Compare(x.Name, y.Name) })
		objects = append(objects, c)
	}
	slices.SortFunc(objects, func(x, y Object) int { return cmp.Compare(x.ID, y.ID) })
	return Hash(&Document{Version: doc.Version, Objects: objects})
}
