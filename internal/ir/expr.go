package ir

import (
	"encoding/json"
	"fmt"
	"slices"
)

// TimeSymbol is the reserved name of simulation time. It is never a
// reference.
const TimeSymbol = "t"

// Expression is expression text plus its free symbol references, sorted and
// de-duplicated. Function names and TimeSymbol are not references.
type Expression struct {
	Text string   `json:"text"`
	Refs []string `json:"refs,omitempty"`
}

// NewExpression builds an Expression from text and already extracted
// references, normalizing the reference list.
func NewExpression(text string, refs ...string) Expression {
	return Expression{Text: text, Refs: normalizeRefs(refs)}
}

func normalizeRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r == TimeSymbol || r == "" {
			continue
		}
		out = append(out, r)
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// AliasRHS is the right-hand side of an alias: Simple or Piecewise.
type AliasRHS interface {
	// References is the union of every branch's references, sorted.
	References() []string
	rhsKind() string
}

// Simple is a single expression alias.
type Simple struct {
	Expr Expression
}

func (s Simple) References() []string { return s.Expr.Refs }
func (Simple) rhsKind() string          { return "simple" }

// Piece is one conditional branch of a piecewise alias.
type Piece struct {
	Condition Expression `json:"condition"`
	Value     Expression `json:"value"`
}

// Piecewise selects the first piece whose condition holds, else Otherwise.
type Piecewise struct {
	Pieces    []Piece
	Otherwise Expression
}

func (p Piecewise) References() []string {
	var refs []string
	for _, piece := range p.Pieces {
		refs = append(refs, piece.Condition.Refs...)
		refs = append(refs, piece.Value.Refs...)
	}
	refs = append(refs, p.Otherwise.Refs...)
	return normalizeRefs(refs)
}

func (Piecewise) rhsKind() string { return "piecewise" }

type rhsJSON struct {
	Kind      string      `json:"kind"`
	Expr      *Expression `json:"expr,omitempty"`
	Pieces    []Piece     `json:"pieces,omitempty"`
	Otherwise *Expression `json:"otherwise,omitempty"`
}

// MarshalJSON encodes the tagged variant with an explicit kind.
func (a AliasDecl) MarshalJSON() ([]byte, error) {
	type plain struct {
		Name string   `json:"name"`
		Unit string   `json:"unit,omitempty"`
		RHS  *rhsJSON `json:"rhs,omitempty"`
	}
	out := plain{Name: a.Name, Unit: a.Unit}
	switch rhs := a.RHS.(type) {
	case Simple:
		out.RHS = &rhsJSON{Kind: rhs.rhsKind(), Expr: &rhs.Expr}
	case Piecewise:
		out.RHS = &rhsJSON{Kind: rhs.rhsKind(), Pieces: rhs.Pieces, Otherwise: &rhs.Otherwise}
	case nil:
	default:
		return nil, fmt.Errorf("alias %q: unknown rhs type %T", a.Name, a.RHS)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged variant written by MarshalJSON.
func (a *AliasDecl) UnmarshalJSON(data []byte) error {
	var in struct {
		Name string   `json:"name"`
		Unit string   `json:"unit,omitempty"`
		RHS  *rhsJSON `json:"rhs,omitempty"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.Name, a.Unit, a.RHS = in.Name, in.Unit, nil
	if in.RHS == nil {
		return nil
	}
	switch in.RHS.Kind {
	case "simple":
		if in.RHS.Expr == nil {
			return fmt.Errorf("alias %q: simple rhs without expr", in.Name)
		}
		a.RHS = Simple{Expr: *in.RHS.Expr}
	case "piecewise":
		pw := Piecewise{Pieces: in.RHS.Pieces}
		if in.RHS.Otherwise != nil {
			pw.Otherwise = *in.RHS.Otherwise
		}
		a.RHS = pw
	default:
		return fmt.Errorf("alias %q: unknown rhs kind %q", in.Name, in.RHS.Kind)
	}
	return nil
}
