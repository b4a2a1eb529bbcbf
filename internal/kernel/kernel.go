// Package kernel assembles the generated C++ source of one model class.
//
// A kernel has three scoped functions. <Name>_dynamics declares the symbols
// every regime's derivatives share once at function scope and the rest
// inside each regime's case. <Name>_triggers and <Name>_transition open one
// scope per regime, and transitions open one more per on-condition. Each
// function owns its own resolve.Tracker, so nothing is declared twice along
// a scope chain and sibling scopes never see each other's declarations.
package kernel

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/dyngen/internal/emit"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/resolve"
	"github.com/roach88/dyngen/internal/solver"
	"github.com/roach88/dyngen/internal/units"
)

const indentUnit = "  "

// Options configure kernel generation.
type Options struct {
	// Debug adds trace output after every declaration block.
	Debug bool
	// Exclude lists symbols the host already provides in every scope.
	Exclude []ir.SymbolKey
	// Annotator supplies units and scales. Defaults to units.NewDeclared.
	Annotator units.Annotator
	// Solver holds the tolerances written into the kernel. Unset fields
	// take solver.DefaultSettings.
	Solver solver.Settings
}

// Scope records what one generated scope declared.
type Scope struct {
	Path     string         `json:"path"`
	Declared ir.RequiredSet `json:"declared"`
	Hash     string         `json:"hash"`
}

// Kernel is a generated source file.
type Kernel struct {
	Model     string  `json:"model"`
	FileName  string  `json:"file_name"`
	ModelHash string  `json:"model_hash"`
	Hash      string  `json:"hash"`
	Source    string  `json:"-"`
	Scopes    []Scope `json:"scopes"`
}

// generator carries the state of one Generate call.
type generator struct {
	model     *ir.ModelClass
	resolver  *resolve.Resolver
	annotator units.Annotator
	opts      Options
	emitters  map[int]*emit.Emitter
	scopes    []Scope
}

// Generate renders the kernel for m. Nothing is returned unless every scope
// resolved and emitted cleanly.
func Generate(m *ir.ModelClass, opts Options) (*Kernel, error) {
	if len(m.Regimes) == 0 {
		return nil, fmt.Errorf("model %s has no regimes", m.Name)
	}
	if opts.Annotator == nil {
		opts.Annotator = units.NewDeclared(m)
	}
	opts.Solver = opts.Solver.WithDefaults()
	modelHash, err := ir.ModelHash(m)
	if err != nil {
		return nil, err
	}

	g := &generator{
		model:     m,
		resolver:  resolve.New(m),
		annotator: opts.Annotator,
		opts:      opts,
		emitters:  make(map[int]*emit.Emitter),
	}

	var b strings.Builder
	g.header(&b, modelHash)
	b.WriteString(solver.Fragments(m.Name, len(m.StateVariables)))
	b.WriteByte('\n')

	for _, section := range []func(*strings.Builder) error{g.dynamics, g.triggers, g.transition} {
		if err := section(&b); err != nil {
			return nil, fmt.Errorf("generate %s: %w", m.Name, err)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "}  // namespace %s\n", namespace(m.Name))

	src := b.String()
	slog.Debug("kernel generated",
		"model", m.Name,
		"scopes", len(g.scopes),
		"bytes", len(src))

	return &Kernel{
		Model:     m.Name,
		FileName:  m.Name + ".cpp",
		ModelHash: modelHash,
		Hash:      ir.FragmentHash(src),
		Source:    src,
		Scopes:    g.scopes,
	}, nil
}

// Write stores the kernel source in dir. The file is written to a temporary
// name first and renamed, so a failed write leaves no partial kernel.
func (k *Kernel) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, k.FileName)
	tmp, err := os.CreateTemp(dir, "."+k.FileName+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(k.Source); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write kernel: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write kernel: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to install kernel: %w", err)
	}
	return path, nil
}

// namespace derives the C++ namespace of a model's kernel.
func namespace(model string) string {
	return cases.Lower(language.Und).String(model) + "_kernel"
}

// RegimeConstant names the enumerator of a regime.
func RegimeConstant(regime string) string {
	return regime + "_regime"
}

func (g *generator) header(b *strings.Builder, modelHash string) {
	m := g.model
	fmt.Fprintf(b, "// Code generated by dyngen %s. DO NOT EDIT.\n", ir.GeneratorVersion)
	fmt.Fprintf(b, "// model: %s\n", m.Name)
	if m.URL != "" {
		fmt.Fprintf(b, "// source: %s\n", m.URL)
	}
	fmt.Fprintf(b, "// model hash: %s\n\n", modelHash)

	for _, inc := range []string{"cmath", "exception", "iostream", "string", "vector"} {
		fmt.Fprintf(b, "#include <%s>\n", inc)
	}
	b.WriteString("\n#include <nvector/nvector_serial.h>\n\n")
	fmt.Fprintf(b, "#include \"%s.h\"\n\n", m.Name)
	fmt.Fprintf(b, "namespace %s {\n\n", namespace(m.Name))

	b.WriteString("enum Regime {\n")
	for i, r := range m.Regimes {
		fmt.Fprintf(b, "%s%s = %d,\n", indentUnit, RegimeConstant(r.Name), i)
	}
	b.WriteString("};\n\n")

	fmt.Fprintf(b, "const double abstol = %s;\n", units.FormatFloat(g.opts.Solver.AbsTol))
	fmt.Fprintf(b, "const double reltol = %s;\n", units.FormatFloat(g.opts.Solver.RelTol))
	fmt.Fprintf(b, "const long max_steps = %d;\n\n", g.opts.Solver.MaxSteps)

	fmt.Fprintf(b, "int %s_dynamics(double t, const double* y, double* y1, void* pnode);\n\n", m.Name)
}

// emitter returns the emitter for declarations at the given nesting depth.
func (g *generator) emitter(depth int) *emit.Emitter {
	if e, ok := g.emitters[depth]; ok {
		return e
	}
	e := emit.New(g.model, g.annotator, emit.Options{
		Indent: strings.Repeat(indentUnit, depth),
		Debug:  g.opts.Debug,
	})
	g.emitters[depth] = e
	return e
}

// declare records required in the tracker's current scope and renders the
// increment at depth.
func (g *generator) declare(b *strings.Builder, tr *resolve.Tracker, required ir.RequiredSet, depth int) error {
	inc, err := tr.DeclareSet(required)
	if err != nil {
		return err
	}
	hash, err := ir.ScopeHash(tr.Path(), inc)
	if err != nil {
		return err
	}
	g.scopes = append(g.scopes, Scope{Path: tr.Path(), Declared: inc, Hash: hash})

	text, err := g.emitter(depth).Declarations(inc)
	if err != nil {
		return fmt.Errorf("scope %s: %w", tr.Path(), err)
	}
	b.WriteString(text)
	return nil
}

// shared resolves every group and returns their common part, which is
// closed under alias expansion because each group's set is.
func (g *generator) shared(groups [][]ir.Expression) ([]ir.RequiredSet, ir.RequiredSet, error) {
	sets := make([]ir.RequiredSet, len(groups))
	var common ir.RequiredSet
	for i, group := range groups {
		rs, err := g.resolver.RequiredFor(group)
		if err != nil {
			return nil, ir.RequiredSet{}, err
		}
		sets[i] = rs
		if i == 0 {
			common = rs
		} else {
			common = common.Intersect(rs)
		}
	}
	return sets, common, nil
}

func (g *generator) openFunction(b *strings.Builder, signature string) {
	fmt.Fprintf(b, "%s {\n", signature)
	fmt.Fprintf(b, "%s%s& node = *static_cast<%s*>(pnode);\n", indentUnit, g.model.Name, g.model.Name)
}

func (g *generator) dynamics(b *strings.Builder) error {
	m := g.model
	tr := resolve.NewTracker(g.resolver, m.Name+"_dynamics", g.opts.Exclude)

	groups := make([][]ir.Expression, len(m.Regimes))
	for i := range m.Regimes {
		groups[i] = m.Regimes[i].DerivativeExpressions()
	}
	sets, common, err := g.shared(groups)
	if err != nil {
		return err
	}

	g.openFunction(b, fmt.Sprintf("int %s_dynamics(double t, const double* y, double* y1, void* pnode)", m.Name))
	if err := g.declare(b, tr, common, 1); err != nil {
		return err
	}
	fmt.Fprintf(b, "%sswitch (node.S_.regime) {\n", indentUnit)
	for i := range m.Regimes {
		r := &m.Regimes[i]
		tr.Push("regime:" + r.Name)
		fmt.Fprintf(b, "%scase %s: {\n", indentUnit, RegimeConstant(r.Name))
		if err := g.declare(b, tr, sets[i], 2); err != nil {
			return err
		}
		for slot, sv := range m.StateVariables {
			rhs := "0.0"
			if d, ok := r.Derivative(sv.Name); ok {
				if rhs, err = compiler.CSource(d.Text); err != nil {
					return fmt.Errorf("regime %s: derivative of %s: %w", r.Name, sv.Name, err)
				}
			}
			fmt.Fprintf(b, "%sy1[%d] = %s;\n", strings.Repeat(indentUnit, 2), slot, rhs)
		}
		fmt.Fprintf(b, "%sbreak;\n%s}\n", strings.Repeat(indentUnit, 2), indentUnit)
		if _, err := tr.Pop(); err != nil {
			return err
		}
	}
	fmt.Fprintf(b, "%sdefault:\n%sreturn -1;\n%s}\n", indentUnit, strings.Repeat(indentUnit, 2), indentUnit)
	fmt.Fprintf(b, "%sreturn 0;\n}\n", indentUnit)
	return nil
}

func (g *generator) triggers(b *strings.Builder) error {
	m := g.model
	tr := resolve.NewTracker(g.resolver, m.Name+"_triggers", g.opts.Exclude)

	g.openFunction(b, fmt.Sprintf("void %s_triggers(double t, const double* y, void* pnode)", m.Name))
	fmt.Fprintf(b, "%sswitch (node.S_.regime) {\n", indentUnit)
	for i := range m.Regimes {
		r := &m.Regimes[i]
		if len(r.OnConditions) == 0 {
			continue
		}
		tr.Push("regime:" + r.Name)
		fmt.Fprintf(b, "%scase %s: {\n", indentUnit, RegimeConstant(r.Name))
		required, err := g.resolver.RequiredFor(r.TriggerExpressions())
		if err != nil {
			return err
		}
		if err := g.declare(b, tr, required, 2); err != nil {
			return err
		}
		flags, err := g.emitter(2).Triggers(r)
		if err != nil {
			return err
		}
		b.WriteString(flags)
		fmt.Fprintf(b, "%sbreak;\n%s}\n", strings.Repeat(indentUnit, 2), indentUnit)
		if _, err := tr.Pop(); err != nil {
			return err
		}
	}
	fmt.Fprintf(b, "%sdefault:\n%sbreak;\n%s}\n}\n", indentUnit, strings.Repeat(indentUnit, 2), indentUnit)
	return nil
}

// transition fires the first armed on-condition of the current regime,
// applies its state assignments and switches regime. It returns 1 when a
// transition fired and 0 otherwise.
func (g *generator) transition(b *strings.Builder) error {
	m := g.model
	tr := resolve.NewTracker(g.resolver, m.Name+"_transition", g.opts.Exclude)
	in2, in3 := strings.Repeat(indentUnit, 2), strings.Repeat(indentUnit, 3)

	g.openFunction(b, fmt.Sprintf("int %s_transition(double t, double* y, void* pnode)", m.Name))
	fmt.Fprintf(b, "%sswitch (node.S_.regime) {\n", indentUnit)
	for i := range m.Regimes {
		r := &m.Regimes[i]
		if len(r.OnConditions) == 0 {
			continue
		}
		groups := make([][]ir.Expression, len(r.OnConditions))
		for j, oc := range r.OnConditions {
			groups[j] = oc.AssignmentExpressions()
		}
		sets, common, err := g.shared(groups)
		if err != nil {
			return err
		}

		tr.Push("regime:" + r.Name)
		fmt.Fprintf(b, "%scase %s: {\n", indentUnit, RegimeConstant(r.Name))
		if err := g.declare(b, tr, common, 2); err != nil {
			return err
		}
		for j, oc := range r.OnConditions {
			tr.Push(fmt.Sprintf("on_condition:%d", r.IndexOf(oc)))
			fmt.Fprintf(b, "%sif (!%s[%d]) {\n", in2, emit.FlagArray(r.Name), j)
			if err := g.declare(b, tr, sets[j], 3); err != nil {
				return err
			}
			for _, sa := range oc.StateAssignments {
				rhs, err := compiler.CSource(sa.Expr.Text)
				if err != nil {
					return fmt.Errorf("regime %s: assignment of %s: %w", r.Name, sa.Variable, err)
				}
				fmt.Fprintf(b, "%sy[%d] = %s;\n", in3, m.StateIndex(sa.Variable), rhs)
			}
			fmt.Fprintf(b, "%snode.S_.regime = %s;\n", in3, RegimeConstant(oc.Target))
			fmt.Fprintf(b, "%sreturn 1;\n%s}\n", in3, in2)
			if _, err := tr.Pop(); err != nil {
				return err
			}
		}
		fmt.Fprintf(b, "%sbreak;\n%s}\n", in2, indentUnit)
		if _, err := tr.Pop(); err != nil {
			return err
		}
	}
	fmt.Fprintf(b, "%sdefault:\n%sbreak;\n%s}\n", indentUnit, in2, indentUnit)
	fmt.Fprintf(b, "%sreturn 0;\n}\n", indentUnit)
	return nil
}
