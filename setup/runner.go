package setup

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/snapshot"
)

// Setup is a named command sequence.
type Setup struct {
	Name     string
	Commands []Command
}

// FromDoc decodes every command of doc.
func FromDoc(doc snapshot.SetupDoc) (Setup, error) {
	s := Setup{Name: doc.Name, Commands: make([]Command, 0, len(doc.Commands))}
	for i, cd := range doc.Commands {
		c, err := DecodeCommand(cd)
		if err != nil {
			return Setup{}, eris.Wrapf(err, "setup %q command %d", doc.Name, i)
		}
		s.Commands = append(s.Commands, c)
	}
	return s, nil
}

// Doc encodes s for storage in a snapshot.
func (s Setup) Doc() snapshot.SetupDoc {
	doc := snapshot.SetupDoc{Name: s.Name, Commands: make([]snapshot.CommandDoc, 0, len(s.Commands))}
	for _, c := range s.Commands {
		doc.Commands = append(doc.Commands, EncodeCommand(c))
	}
	return doc
}

// Docs encodes setups for storage in a snapshot.
func Docs(setups []Setup) []snapshot.SetupDoc {
	docs := make([]snapshot.SetupDoc, 0, len(setups))
	for _, s := range setups {
		docs = append(docs, s.Doc())
	}
	return docs
}

// FromDocs decodes the setups stored in a snapshot.
func FromDocs(docs []snapshot.SetupDoc) ([]Setup, error) {
	setups := make([]Setup, 0, len(docs))
	for _, doc := range docs {
		s, err := FromDoc(doc)
		if err != nil {
			return nil, err
		}
		setups = append(setups, s)
	}
	return setups, nil
}

// Find returns the setup called name.
func Find(setups []Setup, name string) (Setup, error) {
	for _, s := range setups {
		if s.Name == name {
			return s, nil
		}
	}
	return Setup{}, eris.Wrapf(ErrSetupNotFound, "%q", name)
}

type setupFile struct {
	Setups []snapshot.SetupDoc `yaml:"setups"`
}

// LoadFile reads setups from a YAML file with a top-level setups list.
func LoadFile(path string) ([]Setup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read setup file %s", path)
	}
	return ParseYAML(raw)
}

// ParseYAML is LoadFile for setups already in memory.
func ParseYAML(raw []byte) ([]Setup, error) {
	var f setupFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrap(err, "failed to parse setup file")
	}
	return FromDocs(f.Setups)
}

// MarshalYAML writes setups in the format LoadFile reads.
func MarshalYAML(setups []Setup) ([]byte, error) {
	bz, err := yaml.Marshal(setupFile{Setups: Docs(setups)})
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal setups")
	}
	return bz, nil
}

// Runner executes setups against one store. Pools survive between runs so that later setups can reuse pools
// declared by earlier ones.
type Runner struct {
	pools *Pools
	log   zerolog.Logger
}

// NewRunner returns a runner whose pools draw from a random source seeded with seed. The same seed over the
// same store always produces the same arrangement.
func NewRunner(store *gamedata.Store, seed uint64, opts ...Option) *Runner {
	pools := NewPools(store, seed, opts...)
	return &Runner{pools: pools, log: pools.log}
}

func (r *Runner) Pools() *Pools { return r.pools }

// Run executes the commands of s in order. It stops at the first failing command. When the store tracks changes
// a failure rolls back the whole pending transaction; committing a successful run is left to the caller.
func (r *Runner) Run(s Setup) error {
	store := r.pools.store
	for i, c := range s.Commands {
		if err := c.Run(r.pools); err != nil {
			if store.TracksChanges() {
				store.Rollback()
			}
			return eris.Wrapf(err, "setup %q command %d (%s)", s.Name, i, c.Type())
		}
	}
	r.log.Info().Str("setup", s.Name).Int("commands", len(s.Commands)).Int("pools", r.pools.Len()).Msg("setup complete")
	return nil
}
