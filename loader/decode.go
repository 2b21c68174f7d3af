package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofhir/elmrequirements/elm"
)

var (
	// ErrNoLibrary is returned when a document has no top-level "library" object.
	ErrNoLibrary = errors.New("loader: document has no library")

	// ErrNoIdentifier is returned when a library has no identifier id.
	ErrNoIdentifier = errors.New("loader: library has no identifier")
)

// object is a JSON object whose members are decoded lazily.
type object map[string]json.RawMessage

// metadataKeys are members that never hold child expressions.
var metadataKeys = map[string]bool{
	"type":                true,
	"localId":             true,
	"locator":             true,
	"resultTypeName":      true,
	"resultTypeSpecifier": true,
	"annotation":          true,
	"signature":           true,
	"trackbacks":          true,
}

// refKeys are members that hold a terminology reference without a type tag.
var refKeys = map[string]string{
	"valueset":   "ValueSetRef",
	"codesystem": "CodeSystemRef",
	"system":     "CodeSystemRef",
}

type document struct {
	Library json.RawMessage `json:"library"`
}

type identifierJSON struct {
	System  string `json:"system"`
	ID      string `json:"id"`
	Version string `json:"version"`
}

// DecodeLibrary decodes an ELM JSON document into a library.
func DecodeLibrary(data []byte) (*elm.Library, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ELM document: %w", err)
	}
	if isNull(doc.Library) {
		return nil, ErrNoLibrary
	}

	d := &decoder{}
	lib := d.library(doc.Library)
	if d.err != nil {
		return nil, d.err
	}
	if lib.Identifier.ID == "" {
		return nil, ErrNoIdentifier
	}
	return lib, nil
}

// DecodeIdentifier reads only the identifier of an ELM JSON document.
func DecodeIdentifier(data []byte) (elm.VersionedIdentifier, error) {
	var doc struct {
		Library *struct {
			Identifier identifierJSON `json:"identifier"`
		} `json:"library"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return elm.VersionedIdentifier{}, fmt.Errorf("decode ELM document: %w", err)
	}
	if doc.Library == nil {
		return elm.VersionedIdentifier{}, ErrNoLibrary
	}
	id := doc.Library.Identifier
	if id.ID == "" {
		return elm.VersionedIdentifier{}, ErrNoIdentifier
	}
	return elm.VersionedIdentifier{System: id.System, ID: id.ID, Version: id.Version}, nil
}

// DecodeExpression decodes a single ELM JSON expression.
func DecodeExpression(data []byte) (elm.Expression, error) {
	d := &decoder{}
	e := d.expr(data)
	if d.err != nil {
		return nil, d.err
	}
	return e, nil
}

// decoder keeps the first error it encounters; later calls become no-ops
// that return zero values.
type decoder struct {
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func (d *decoder) obj(raw json.RawMessage) object {
	if d.err != nil || isNull(raw) {
		return nil
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		d.fail(fmt.Errorf("decode ELM object: %w", err))
		return nil
	}
	return o
}

func (d *decoder) array(raw json.RawMessage) []json.RawMessage {
	if d.err != nil || isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		d.fail(fmt.Errorf("decode ELM array: %w", err))
		return nil
	}
	return items
}

func (d *decoder) str(o object, key string) string {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Some translators emit numbers or booleans for literal values.
		return string(bytes.TrimSpace(raw))
	}
	return s
}

func (d *decoder) boolean(o object, key string) bool {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		d.fail(fmt.Errorf("decode ELM %s: %w", key, err))
	}
	return b
}

// defs unwraps a {"def": [...]} section.
func (d *decoder) defs(o object, key string) []json.RawMessage {
	section := d.obj(o[key])
	if section == nil {
		return nil
	}
	return d.array(section["def"])
}

func (d *decoder) base(o object) elm.Base {
	return elm.Base{
		LocalID: d.str(o, "localId"),
		Locator: d.str(o, "locator"),
	}
}

func (d *decoder) exprBase(o object) elm.ExpressionBase {
	return elm.ExpressionBase{
		Base:                d.base(o),
		ResultTypeName:      elm.ParseQName(d.str(o, "resultTypeName")),
		ResultTypeSpecifier: d.typeSpec(o["resultTypeSpecifier"]),
	}
}

func (d *decoder) library(raw json.RawMessage) *elm.Library {
	o := d.obj(raw)
	lib := &elm.Library{Base: d.base(o)}
	if o == nil {
		return lib
	}

	var id identifierJSON
	if raw, ok := o["identifier"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &id); err != nil {
			d.fail(fmt.Errorf("decode library identifier: %w", err))
		}
	}
	lib.Identifier = elm.VersionedIdentifier{System: id.System, ID: id.ID, Version: id.Version}

	for _, raw := range d.defs(o, "usings") {
		u := d.obj(raw)
		lib.Usings = append(lib.Usings, &elm.UsingDef{
			Base:            d.base(u),
			LocalIdentifier: d.str(u, "localIdentifier"),
			URI:             d.str(u, "uri"),
			Version:         d.str(u, "version"),
		})
	}
	for _, raw := range d.defs(o, "includes") {
		inc := d.obj(raw)
		lib.Includes = append(lib.Includes, &elm.IncludeDef{
			Base:            d.base(inc),
			LocalIdentifier: d.str(inc, "localIdentifier"),
			Path:            d.str(inc, "path"),
			Version:         d.str(inc, "version"),
		})
	}
	for _, raw := range d.defs(o, "parameters") {
		p := d.obj(raw)
		lib.Parameters = append(lib.Parameters, &elm.ParameterDef{
			Base:                   d.base(p),
			Name:                   d.str(p, "name"),
			Default:                d.expr(p["default"]),
			ParameterTypeSpecifier: d.typeSpec(p["parameterTypeSpecifier"]),
		})
	}
	for _, raw := range d.defs(o, "codeSystems") {
		cs := d.obj(raw)
		lib.CodeSystems = append(lib.CodeSystems, &elm.CodeSystemDef{
			Base:    d.base(cs),
			Name:    d.str(cs, "name"),
			ID:      d.str(cs, "id"),
			Version: d.str(cs, "version"),
		})
	}
	for _, raw := range d.defs(o, "valueSets") {
		vs := d.obj(raw)
		def := &elm.ValueSetDef{
			Base:    d.base(vs),
			Name:    d.str(vs, "name"),
			ID:      d.str(vs, "id"),
			Version: d.str(vs, "version"),
		}
		for _, ref := range d.array(vs["codeSystem"]) {
			def.CodeSystems = append(def.CodeSystems, d.codeSystemRef(ref))
		}
		lib.ValueSets = append(lib.ValueSets, def)
	}
	for _, raw := range d.defs(o, "codes") {
		c := d.obj(raw)
		lib.Codes = append(lib.Codes, &elm.CodeDef{
			Base:       d.base(c),
			Name:       d.str(c, "name"),
			ID:         d.str(c, "id"),
			Display:    d.str(c, "display"),
			CodeSystem: d.codeSystemRef(c["codeSystem"]),
		})
	}
	for _, raw := range d.defs(o, "concepts") {
		c := d.obj(raw)
		def := &elm.ConceptDef{
			Base:    d.base(c),
			Name:    d.str(c, "name"),
			Display: d.str(c, "display"),
		}
		for _, ref := range d.array(c["code"]) {
			if r := d.codeRef(ref); r != nil {
				def.Codes = append(def.Codes, r)
			}
		}
		lib.Concepts = append(lib.Concepts, def)
	}
	for _, raw := range d.defs(o, "contexts") {
		c := d.obj(raw)
		lib.Contexts = append(lib.Contexts, &elm.ContextDef{Base: d.base(c), Name: d.str(c, "name")})
	}
	for _, raw := range d.defs(o, "statements") {
		if def := d.statement(raw); def != nil {
			lib.Statements = append(lib.Statements, def)
		}
	}
	return lib
}

func (d *decoder) statement(raw json.RawMessage) elm.ExpressionDefinition {
	o := d.obj(raw)
	if o == nil {
		return nil
	}
	def := elm.ExpressionDef{
		Base:        d.base(o),
		Name:        d.str(o, "name"),
		Context:     d.str(o, "context"),
		AccessLevel: d.str(o, "accessLevel"),
		Expression:  d.expr(o["expression"]),
	}
	if d.str(o, "type") != "FunctionDef" {
		return &def
	}

	fn := &elm.FunctionDef{ExpressionDef: def, External: d.boolean(o, "external")}
	for _, raw := range d.array(o["operand"]) {
		op := d.obj(raw)
		fn.Operands = append(fn.Operands, &elm.OperandDef{
			Base:                 d.base(op),
			Name:                 d.str(op, "name"),
			OperandTypeSpecifier: d.typeSpec(op["operandTypeSpecifier"]),
		})
	}
	return fn
}

func (d *decoder) codeSystemRef(raw json.RawMessage) *elm.CodeSystemRef {
	o := d.obj(raw)
	if o == nil {
		return nil
	}
	return &elm.CodeSystemRef{ExpressionBase: d.exprBase(o), Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
}

func (d *decoder) codeRef(raw json.RawMessage) *elm.CodeRef {
	o := d.obj(raw)
	if o == nil {
		return nil
	}
	return &elm.CodeRef{ExpressionBase: d.exprBase(o), Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
}

func (d *decoder) typeSpec(raw json.RawMessage) elm.TypeSpecifier {
	o := d.obj(raw)
	if o == nil {
		return nil
	}
	switch d.str(o, "type") {
	case "NamedTypeSpecifier":
		return &elm.NamedTypeSpecifier{Name: elm.ParseQName(d.str(o, "name"))}
	case "ListTypeSpecifier":
		return &elm.ListTypeSpecifier{ElementType: d.typeSpec(o["elementType"])}
	case "IntervalTypeSpecifier":
		return &elm.IntervalTypeSpecifier{PointType: d.typeSpec(o["pointType"])}
	case "TupleTypeSpecifier":
		spec := &elm.TupleTypeSpecifier{}
		for _, raw := range d.array(o["element"]) {
			el := d.obj(raw)
			spec.Elements = append(spec.Elements, elm.TupleElementDefinition{
				Name:        d.str(el, "name"),
				ElementType: d.typeSpec(el["elementType"]),
			})
		}
		return spec
	case "ChoiceTypeSpecifier":
		spec := &elm.ChoiceTypeSpecifier{}
		for _, raw := range d.array(o["choice"]) {
			if c := d.typeSpec(raw); c != nil {
				spec.Choices = append(spec.Choices, c)
			}
		}
		return spec
	default:
		return nil
	}
}

// expr decodes one expression. Unknown node types become elm.Operator.
func (d *decoder) expr(raw json.RawMessage) elm.Expression {
	o := d.obj(raw)
	if o == nil {
		return nil
	}
	typ := d.str(o, "type")
	eb := d.exprBase(o)

	switch typ {
	case "Retrieve":
		return &elm.Retrieve{
			ExpressionBase: eb,
			DataType:       elm.ParseQName(d.str(o, "dataType")),
			TemplateID:     d.str(o, "templateId"),
			CodeProperty:   d.str(o, "codeProperty"),
			Codes:          d.expr(o["codes"]),
			DateProperty:   d.str(o, "dateProperty"),
			DateRange:      d.expr(o["dateRange"]),
			Context:        d.expr(o["context"]),
		}
	case "Property":
		return &elm.Property{
			ExpressionBase: eb,
			Path:           d.str(o, "path"),
			Scope:          d.str(o, "scope"),
			Source:         d.expr(o["source"]),
		}
	case "AliasRef":
		return &elm.AliasRef{ExpressionBase: eb, Name: d.str(o, "name")}
	case "QueryLetRef":
		return &elm.QueryLetRef{ExpressionBase: eb, Name: d.str(o, "name")}
	case "OperandRef":
		return &elm.OperandRef{ExpressionBase: eb, Name: d.str(o, "name")}
	case "IdentifierRef":
		return &elm.IdentifierRef{ExpressionBase: eb, Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
	case "ExpressionRef":
		return &elm.ExpressionRef{ExpressionBase: eb, Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
	case "FunctionRef":
		fr := &elm.FunctionRef{
			ExpressionRef: elm.ExpressionRef{ExpressionBase: eb, Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")},
		}
		for _, raw := range d.array(o["operand"]) {
			if e := d.expr(raw); e != nil {
				fr.Operands = append(fr.Operands, e)
			}
		}
		return fr
	case "CodeRef":
		return &elm.CodeRef{ExpressionBase: eb, Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
	case "CodeSystemRef":
		return &elm.CodeSystemRef{ExpressionBase: eb, Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
	case "ConceptRef":
		return &elm.ConceptRef{ExpressionBase: eb, Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
	case "ValueSetRef":
		return &elm.ValueSetRef{ExpressionBase: eb, Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
	case "ParameterRef":
		return &elm.ParameterRef{ExpressionBase: eb, Name: d.str(o, "name"), LibraryName: d.str(o, "libraryName")}
	case "Literal":
		return &elm.Literal{ExpressionBase: eb, ValueType: elm.ParseQName(d.str(o, "valueType")), Value: d.str(o, "value")}
	case "Null":
		return &elm.Null{ExpressionBase: eb}
	case "List":
		l := &elm.List{ExpressionBase: eb}
		for _, raw := range d.array(o["element"]) {
			if e := d.expr(raw); e != nil {
				l.Elements = append(l.Elements, e)
			}
		}
		return l
	case "Tuple":
		t := &elm.Tuple{ExpressionBase: eb}
		for _, raw := range d.array(o["element"]) {
			el := d.obj(raw)
			t.Elements = append(t.Elements, elm.TupleElement{Name: d.str(el, "name"), Value: d.expr(el["value"])})
		}
		return t
	case "Query":
		return d.query(o, eb)
	case "":
		d.fail(fmt.Errorf("decode ELM expression: missing type"))
		return nil
	default:
		return &elm.Operator{ExpressionBase: eb, Name: typ, Operands: d.children(o)}
	}
}

func (d *decoder) query(o object, eb elm.ExpressionBase) *elm.Query {
	q := &elm.Query{ExpressionBase: eb}
	for _, raw := range d.array(o["source"]) {
		s := d.obj(raw)
		q.Sources = append(q.Sources, &elm.AliasedQuerySource{
			Base:       d.base(s),
			Alias:      d.str(s, "alias"),
			Expression: d.expr(s["expression"]),
		})
	}
	for _, raw := range d.array(o["let"]) {
		l := d.obj(raw)
		q.Lets = append(q.Lets, &elm.LetClause{
			Base:       d.base(l),
			Identifier: d.str(l, "identifier"),
			Expression: d.expr(l["expression"]),
		})
	}
	for _, raw := range d.array(o["relationship"]) {
		r := d.obj(raw)
		q.Relationships = append(q.Relationships, &elm.RelationshipClause{
			AliasedQuerySource: elm.AliasedQuerySource{
				Base:       d.base(r),
				Alias:      d.str(r, "alias"),
				Expression: d.expr(r["expression"]),
			},
			Kind:     d.str(r, "type"),
			SuchThat: d.expr(r["suchThat"]),
		})
	}
	q.Where = d.expr(o["where"])
	if ret := d.obj(o["return"]); ret != nil {
		q.Return = &elm.ReturnClause{
			Base:       d.base(ret),
			Distinct:   d.boolean(ret, "distinct"),
			Expression: d.expr(ret["expression"]),
		}
	}
	if srt := d.obj(o["sort"]); srt != nil {
		q.Sort = &elm.SortClause{Base: d.base(srt)}
		for _, raw := range d.array(srt["by"]) {
			by := d.obj(raw)
			q.Sort.By = append(q.Sort.By, &elm.SortByItem{
				Base:       d.base(by),
				Direction:  d.str(by, "direction"),
				Path:       d.str(by, "path"),
				Expression: d.expr(by["expression"]),
			})
		}
	}
	return q
}

// children collects the child expressions of an untyped node, visiting
// members in key order so decoding is deterministic.
func (d *decoder) children(o object) []elm.Expression {
	keys := make([]string, 0, len(o))
	for k := range o {
		if metadataKeys[k] || strings.HasSuffix(k, "TypeSpecifier") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []elm.Expression
	for _, k := range keys {
		out = d.collect(out, k, o[k])
	}
	return out
}

func (d *decoder) collect(out []elm.Expression, key string, raw json.RawMessage) []elm.Expression {
	if d.err != nil {
		return out
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return out
	}

	switch trimmed[0] {
	case '[':
		for _, item := range d.array(trimmed) {
			out = d.collect(out, key, item)
		}
	case '{':
		o := d.obj(trimmed)
		if _, typed := o["type"]; typed {
			if e := d.expr(trimmed); e != nil {
				out = append(out, e)
			}
			return out
		}
		if kind, ok := refKeys[key]; ok && d.str(o, "name") != "" {
			return append(out, d.untypedRef(kind, o))
		}
		out = append(out, d.children(o)...)
	}
	return out
}

func (d *decoder) untypedRef(kind string, o object) elm.Expression {
	eb := d.exprBase(o)
	name, lib := d.str(o, "name"), d.str(o, "libraryName")
	if kind == "ValueSetRef" {
		return &elm.ValueSetRef{ExpressionBase: eb, Name: name, LibraryName: lib}
	}
	return &elm.CodeSystemRef{ExpressionBase: eb, Name: name, LibraryName: lib}
}
