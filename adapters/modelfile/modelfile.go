// Package modelfile loads parameters and an activity graph from YAML.
//
//	parameters:
//	  - {name: mass, distribution: uniform, default: 2, min: 1, max: 3, unit: kg}
//	  - {name: tech, type: choice, choices: [coal, solar], weights: [1, 3]}
//	activities:
//	  - {name: steel, type: background, scores: {climate: 2, water: 10}}
//	  - {name: solar, type: background, scores: {climate: "0.1 * eff"}}
//	  - name: mix
//	    type: switch
//	    param: tech
//	    cases: [{choice: coal, activity: coal}, {choice: solar, activity: solar, amount: 1.1}]
//	  - name: bike
//	    exchanges: [{activity: steel, amount: mass}, {activity: mix, amount: "3 * mass"}]
//	root: bike
package modelfile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/graph"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

// File is the YAML document.
type File struct {
	Parameters []ParameterDef `yaml:"parameters"`
	Activities []ActivityDef  `yaml:"activities"`
	Root       string         `yaml:"root"`
	Methods    []string       `yaml:"methods"`
}

type ParameterDef struct {
	Name         string    `yaml:"name"`
	Type         string    `yaml:"type"` // float (default) or choice
	Distribution string    `yaml:"distribution"`
	Default      yaml.Node `yaml:"default"`
	Min          float64   `yaml:"min"`
	Max          float64   `yaml:"max"`
	Std          float64   `yaml:"std"`
	Alpha        float64   `yaml:"alpha"`
	Beta         float64   `yaml:"beta"`
	Unit         string    `yaml:"unit"`
	Description  string    `yaml:"description"`
	Choices      []string  `yaml:"choices"`
	Weights      []float64 `yaml:"weights"`
}

type ActivityDef struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"` // foreground (default), background or switch
	Scores    map[string]Amount `yaml:"scores"`
	Exchanges []ExchangeDef     `yaml:"exchanges"`
	Param     string            `yaml:"param"`
	Cases     []CaseDef         `yaml:"cases"`
}

type ExchangeDef struct {
	Activity string `yaml:"activity"`
	Amount   Amount `yaml:"amount"`
}

type CaseDef struct {
	Choice   string `yaml:"choice"`
	Activity string `yaml:"activity"`
	Amount   Amount `yaml:"amount"`
}

// Amount is an expression in the source text; numbers and strings are both
// accepted. Empty means 1.
type Amount string

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a number or an expression", value.Line)
	}
	*a = Amount(value.Value)
	return nil
}

func (a Amount) parse() (expr.Expr, error) {
	if strings.TrimSpace(string(a)) == "" {
		return nil, nil
	}
	return ParseAmount(string(a))
}

// Model is a loaded file.
type Model struct {
	Registry *params.Registry
	Graph    *graph.Graph
	Root     core.ActivityID
	Methods  []core.MethodKey
}

// RootName is the name of the root activity.
func (m *Model) RootName() string { return m.Graph.Name(m.Root) }

// Load reads and parses path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ModelInvalid(path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, apperrors.ModelInvalid(path, err)
	}
	return m, nil
}

// Parse builds a model from YAML. Every parameter an amount or score names
// must be declared.
func Parse(data []byte) (*Model, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	ps := make([]*params.Parameter, 0, len(f.Parameters))
	for _, def := range f.Parameters {
		p, err := def.parameter()
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	reg, err := params.NewRegistry(ps...)
	if err != nil {
		return nil, err
	}

	l := &loader{reg: reg, g: graph.New(), defs: map[string]ActivityDef{}}
	g, err := l.build(f.Activities)
	if err != nil {
		return nil, err
	}

	if f.Root == "" {
		return nil, core.NewInvalidModelError("no root activity")
	}
	root, ok := g.Lookup(f.Root)
	if !ok {
		return nil, core.NewInvalidModelError("root activity %q is not defined", f.Root)
	}

	methods := g.Methods()
	if len(f.Methods) > 0 {
		methods, err = core.ParseMethodKeys(strings.Join(f.Methods, ","))
		if err != nil {
			return nil, err
		}
	}
	return &Model{Registry: reg, Graph: g, Root: root, Methods: methods}, nil
}

func (def ParameterDef) parameter() (*params.Parameter, error) {
	switch strings.ToLower(def.Type) {
	case "choice", "enum":
		return params.NewChoice(def.Name, params.ChoiceSpec{
			Choices:     def.Choices,
			Weights:     def.Weights,
			Default:     def.Default.Value,
			Description: def.Description,
		})
	case "", "float":
		var v float64
		if def.Default.Kind != 0 {
			if err := def.Default.Decode(&v); err != nil {
				return nil, fmt.Errorf("parameter %q: default: %w", def.Name, err)
			}
		}
		distrib := params.Distribution(strings.ToLower(def.Distribution))
		if distrib == "" {
			distrib = params.Fixed
		}
		return params.NewFloat(def.Name, params.FloatSpec{
			Distribution: distrib,
			Default:      v,
			Min:          def.Min,
			Max:          def.Max,
			Std:          def.Std,
			Alpha:        def.Alpha,
			Beta:         def.Beta,
			Unit:         def.Unit,
			Description:  def.Description,
		})
	default:
		return nil, core.NewInvalidParameterError(def.Name, fmt.Sprintf("unknown type %q", def.Type))
	}
}

type loader struct {
	reg  *params.Registry
	g    *graph.Graph
	defs map[string]ActivityDef
}

// build creates nodes in three passes so definitions may appear in any
// order: leaves and foregrounds, then switches, then exchanges.
func (l *loader) build(defs []ActivityDef) (*graph.Graph, error) {
	for _, def := range defs {
		if _, dup := l.defs[def.Name]; dup {
			return nil, core.NewInvalidModelError("activity %q defined twice", def.Name)
		}
		l.defs[def.Name] = def
	}

	for _, def := range defs {
		var err error
		switch strings.ToLower(def.Type) {
		case "background":
			err = l.background(def)
		case "", "foreground":
			_, err = l.g.AddForeground(def.Name)
		case "switch":
		default:
			err = core.NewInvalidModelError("activity %q: unknown type %q", def.Name, def.Type)
		}
		if err != nil {
			return nil, err
		}
	}

	// switches may select other switches
	pending := make([]ActivityDef, 0)
	for _, def := range defs {
		if strings.ToLower(def.Type) == "switch" {
			pending = append(pending, def)
		}
	}
	for len(pending) > 0 {
		var next []ActivityDef
		for _, def := range pending {
			if !l.ready(def) {
				next = append(next, def)
				continue
			}
			if err := l.switchNode(def); err != nil {
				return nil, err
			}
		}
		if len(next) == len(pending) {
			return nil, core.NewInvalidModelError("switch %q references an undefined or cyclic activity", next[0].Name)
		}
		pending = next
	}

	for _, def := range defs {
		if len(def.Exchanges) == 0 {
			continue
		}
		if t := strings.ToLower(def.Type); t != "" && t != "foreground" {
			return nil, core.NewInvalidModelError("activity %q: only foreground activities have exchanges", def.Name)
		}
		parent, _ := l.g.Lookup(def.Name)
		for _, ex := range def.Exchanges {
			child, ok := l.g.Lookup(ex.Activity)
			if !ok {
				return nil, core.NewInvalidModelError("activity %q: exchange with undefined %q", def.Name, ex.Activity)
			}
			amount, err := l.amount(ex.Amount, def.Name)
			if err != nil {
				return nil, err
			}
			if err := l.g.AddExchange(parent, child, amount); err != nil {
				return nil, err
			}
		}
	}
	return l.g, nil
}

func (l *loader) background(def ActivityDef) error {
	scores := make(map[core.MethodKey]expr.Expr, len(def.Scores))
	for m, a := range def.Scores {
		e, err := l.amount(a, def.Name)
		if err != nil {
			return err
		}
		if e == nil {
			e = expr.Const(0)
		}
		scores[core.MethodKey(m)] = e
	}
	_, err := l.g.AddParametricBackground(def.Name, scores)
	return err
}

func (l *loader) ready(def ActivityDef) bool {
	for _, c := range def.Cases {
		if _, ok := l.g.Lookup(c.Activity); !ok {
			return false
		}
	}
	return true
}

func (l *loader) switchNode(def ActivityDef) error {
	cases := make([]graph.SwitchCase, 0, len(def.Cases))
	for _, c := range def.Cases {
		child, _ := l.g.Lookup(c.Activity)
		amount, err := l.amount(c.Amount, def.Name)
		if err != nil {
			return err
		}
		cases = append(cases, graph.SwitchCase{Choice: c.Choice, Child: child, Amount: amount})
	}
	_, err := l.g.AddSwitch(def.Name, def.Param, cases...)
	return err
}

// amount parses a and checks that every parameter it names is declared.
func (l *loader) amount(a Amount, activity string) (expr.Expr, error) {
	e, err := a.parse()
	if err != nil {
		return nil, fmt.Errorf("activity %q: %w", activity, err)
	}
	if e == nil {
		return nil, nil
	}
	for _, name := range expr.Params(e) {
		if _, ok := l.reg.Get(name); !ok {
			return nil, fmt.Errorf("activity %q: %w", activity, &core.UnboundParameterError{Name: name})
		}
	}
	return e, nil
}
