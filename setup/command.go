package setup

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/query"
	"github.com/argus-labs/tabletop/snapshot"
)

// Command is one step of a setup. Commands encode to snapshot.CommandDoc as a type plus tagged parameters.
type Command interface {
	Type() string
	Run(ps *Pools) error
	params() []snapshot.Param
}

const (
	TypeCreate     = "create"
	TypeAddTo      = "addTo"
	TypeDistribute = "distribute"
	TypeExtract    = "extract"
	TypeMove       = "move"
)

// Create declares Pool holding the entities of From that match Query. The source pool is left as is; an empty
// From means every entity of the store.
type Create struct {
	Pool  string
	From  string
	Query string
}

// AddTo moves Count entities of From into the hold of Target.
type AddTo struct {
	From   string
	Target gamedata.ID
	Count  int
	Mode   Mode
}

// Distribute deals Count entities of From into the hold of every entity of To.
type Distribute struct {
	From  string
	To    string
	Count int
	Mode  Mode
}

// Extract moves entities of From matching Query into To. A Limit of zero moves every match.
type Extract struct {
	From  string
	To    string
	Query string
	Limit int
}

// Move relocates Count entities from one pool to another.
type Move struct {
	From  string
	To    string
	Count int
	Mode  Mode
}

func (Create) Type() string     { return TypeCreate }
func (AddTo) Type() string      { return TypeAddTo }
func (Distribute) Type() string { return TypeDistribute }
func (Extract) Type() string    { return TypeExtract }
func (Move) Type() string       { return TypeMove }

// Run fails with ErrPoolExists when Pool is already declared.
func (c Create) Run(ps *Pools) error {
	q, err := parseQuery(c.Query)
	if err != nil {
		return err
	}
	var source []*gamedata.Entity
	if c.From == "" {
		source = ps.store.Entities()
	} else {
		from, err := ps.Pool(c.From)
		if err != nil {
			return err
		}
		source = from.entities
	}

	pool, err := ps.CreatePool(c.Pool)
	if err != nil {
		return err
	}
	for _, e := range source {
		if q.Matches(e) {
			pool.Add(e)
		}
	}
	ps.log.Debug().Str("pool", c.Pool).Int("size", pool.Size()).Msg("created pool")
	return nil
}

// Run fails when Target does not name an entity of the store.
func (c AddTo) Run(ps *Pools) error {
	from, err := ps.Pool(c.From)
	if err != nil {
		return err
	}
	target, err := ps.store.Entity(c.Target)
	if err != nil {
		return err
	}
	for _, e := range from.Pick(c.Count, c.Mode) {
		if err := target.Add(e); err != nil {
			return eris.Wrapf(err, "failed to add %d to %d", e.ID(), c.Target)
		}
	}
	return nil
}

// Run deals as far as From reaches; running out is logged, not an error.
func (c Distribute) Run(ps *Pools) error {
	from, err := ps.Pool(c.From)
	if err != nil {
		return err
	}
	to, err := ps.Pool(c.To)
	if err != nil {
		return err
	}
	dealt, err := from.Distribute(to, c.Count, c.Mode)
	if err != nil {
		return err
	}
	if want := c.Count * to.Size(); dealt < want {
		ps.log.Warn().Str("from", c.From).Int("dealt", dealt).Int("wanted", want).Msg("pool ran out while dealing")
	}
	return nil
}

// Run creates To when it does not exist yet.
func (c Extract) Run(ps *Pools) error {
	q, err := parseQuery(c.Query)
	if err != nil {
		return err
	}
	from, err := ps.Pool(c.From)
	if err != nil {
		return err
	}
	to, err := ps.Ensure(c.To)
	if err != nil {
		return err
	}
	to.Add(from.Extract(q, c.Limit)...)
	return nil
}

// Run creates To when it does not exist yet.
func (c Move) Run(ps *Pools) error {
	from, err := ps.Pool(c.From)
	if err != nil {
		return err
	}
	to, err := ps.Ensure(c.To)
	if err != nil {
		return err
	}
	to.Add(from.Pick(c.Count, c.Mode)...)
	return nil
}

func parseQuery(s string) (*query.Query, error) {
	q, err := query.Parse(s)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidParam, err.Error())
	}
	return q, nil
}

// -------------------------------------------------------------------------------------------------
// Encoding
// -------------------------------------------------------------------------------------------------

func (c Create) params() []snapshot.Param {
	return []snapshot.Param{{Key: "pool", Value: c.Pool}, {Key: "from", Value: c.From}, {Key: "query", Value: c.Query}}
}

func (c AddTo) params() []snapshot.Param {
	return []snapshot.Param{
		{Key: "from", Value: c.From},
		{Key: "target", Value: strconv.FormatInt(int64(c.Target), 10)},
		{Key: "count", Value: strconv.Itoa(c.Count)},
		{Key: "mode", Value: c.Mode.String()},
	}
}

func (c Distribute) params() []snapshot.Param {
	return []snapshot.Param{
		{Key: "from", Value: c.From},
		{Key: "to", Value: c.To},
		{Key: "count", Value: strconv.Itoa(c.Count)},
		{Key: "mode", Value: c.Mode.String()},
	}
}

func (c Extract) params() []snapshot.Param {
	return []snapshot.Param{
		{Key: "from", Value: c.From},
		{Key: "to", Value: c.To},
		{Key: "query", Value: c.Query},
		{Key: "limit", Value: strconv.Itoa(c.Limit)},
	}
}

func (c Move) params() []snapshot.Param {
	return []snapshot.Param{
		{Key: "from", Value: c.From},
		{Key: "to", Value: c.To},
		{Key: "count", Value: strconv.Itoa(c.Count)},
		{Key: "mode", Value: c.Mode.String()},
	}
}

// EncodeCommand returns the document form of c.
func EncodeCommand(c Command) snapshot.CommandDoc {
	return snapshot.CommandDoc{Type: c.Type(), Attributes: c.params()}
}

// DecodeCommand parses the document form of a command. Type names are matched case-insensitively.
func DecodeCommand(doc snapshot.CommandDoc) (Command, error) {
	p := paramReader{doc: doc}
	var c Command
	switch strings.ToLower(doc.Type) {
	case strings.ToLower(TypeCreate):
		c = Create{Pool: p.required("pool"), From: p.optional("from"), Query: p.optional("query")}
	case strings.ToLower(TypeAddTo):
		c = AddTo{From: p.required("from"), Target: gamedata.ID(p.integer("target", -1)), Count: p.integer("count", 1),
			Mode: p.mode()}
	case strings.ToLower(TypeDistribute):
		c = Distribute{From: p.required("from"), To: p.required("to"), Count: p.integer("count", 1), Mode: p.mode()}
	case strings.ToLower(TypeExtract):
		c = Extract{From: p.required("from"), To: p.required("to"), Query: p.optional("query"),
			Limit: p.integer("limit", 0)}
	case strings.ToLower(TypeMove):
		c = Move{From: p.required("from"), To: p.required("to"), Count: p.integer("count", 1), Mode: p.mode()}
	default:
		return nil, eris.Wrapf(ErrUnknownCommand, "%q", doc.Type)
	}
	if p.err != nil {
		return nil, eris.Wrapf(p.err, "%s command", doc.Type)
	}
	return c, nil
}

// paramReader collects the first decoding error so that a command is decoded in one expression.
type paramReader struct {
	doc snapshot.CommandDoc
	err error
}

func (p *paramReader) optional(key string) string {
	v, _ := p.doc.Param(key)
	return v
}

func (p *paramReader) required(key string) string {
	v, ok := p.doc.Param(key)
	if (!ok || v == "") && p.err == nil {
		p.err = eris.Wrapf(ErrInvalidParam, "missing %q", key)
	}
	return v
}

func (p *paramReader) integer(key string, def int) int {
	v, ok := p.doc.Param(key)
	if !ok || v == "" {
		if def < 0 && p.err == nil {
			p.err = eris.Wrapf(ErrInvalidParam, "missing %q", key)
		}
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = eris.Wrapf(ErrInvalidParam, "%q is not a number: %q", key, v)
	}
	return n
}

func (p *paramReader) mode() Mode {
	m, err := ParseMode(p.optional("mode"))
	if err != nil && p.err == nil {
		p.err = err
	}
	return m
}
