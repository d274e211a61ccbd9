package expr

import (
	"fmt"
	"strconv"
	"strings"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (c *Constant) String() string {
	if c.Value < 0 {
		return "(" + formatFloat(c.Value) + ")"
	}
	return formatFloat(c.Value)
}

func (p *ParamRef) String() string { return p.Name }

func (s *Sum) String() string {
	if len(s.Terms) == 0 {
		return "0"
	}
	parts := make([]string, len(s.Terms))
	for i, t := range s.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}

func (p *Product) String() string {
	if len(p.Factors) == 0 {
		return "1"
	}
	parts := make([]string, len(p.Factors))
	for i, f := range p.Factors {
		if _, isSum := f.(*Sum); isSum {
			parts[i] = "(" + f.String() + ")"
		} else {
			parts[i] = f.String()
		}
	}
	return strings.Join(parts, "*")
}

func (s *Switch) String() string {
	parts := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		parts[i] = c.Choice + ": " + c.Value.String()
	}
	return fmt.Sprintf("switch(%s){%s}", s.Param, strings.Join(parts, ", "))
}

func (c *BoundedClip) String() string {
	return fmt.Sprintf("clip(%s, %s, %s)", c.Inner, formatFloat(c.Min), formatFloat(c.Max))
}

func (a *ActivityRef) String() string {
	if a.Name == "" {
		return fmt.Sprintf("[#%d]", a.ID)
	}
	return "[" + a.Name + "]"
}

// Format renders e as a human-readable algebraic string. A nil tree renders
// as "<nil>".
func Format(e Expr) string {
	if e == nil {
		return "<nil>"
	}
	return e.String()
}
