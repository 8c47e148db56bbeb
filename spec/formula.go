package spec

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// A Term is one fixed-effect term: a single predictor, or an interaction of
// several. Vars are kept sorted so "a:b" and "b:a" are the same term.
type Term struct {
	Vars []string
}

// String renders the term in canonical a:b form.
func (t Term) String() string {
	return strings.Join(t.Vars, ":")
}

// A GroupTerm is a multilevel (partial pooling) term like (1|Subject) or
// (1+Temp|Subject): effects on the left of the bar vary by the grouping
// factor on the right.
type GroupTerm struct {
	Intercept bool
	Terms     []Term
	Group     string
}

// String renders the group term in canonical (1+a|g) form.
func (g GroupTerm) String() string {
	parts := []string{}
	if g.Intercept {
		parts = append(parts, "1")
	}
	for _, t := range g.Terms {
		parts = append(parts, t.String())
	}
	if len(parts) < 1 {
		parts = append(parts, "0")
	}
	return "(" + strings.Join(parts, "+") + "|" + g.Group + ")"
}

// A Formula is a parsed, normalized model formula: response, population
// level terms, and grouping terms. Two formulas that differ only in term
// order or a*b vs b*a spelling normalize to the same Canonical text.
type Formula struct {
	Raw       string
	Response  string
	Intercept bool
	Terms     []Term
	Groups    []GroupTerm
}

// ParseFormula parses "outcome ~ predictors" formula text. The predictor
// grammar is additive terms, where a term is a variable, an a:b
// interaction, an a*b crossing (expanded to main effects plus all
// interactions), a (terms|group) multilevel term, or the literals 1/0 to
// force/remove the intercept (which is otherwise implied).
func ParseFormula(raw string) (*Formula, error) {
	sides := strings.Split(raw, "~")
	if len(sides) != 2 {
		return nil, errors.Errorf("Formula %q must have exactly one ~", raw)
	}

	resp := strings.TrimSpace(sides[0])
	if !validIdent(resp) {
		return nil, errors.Errorf("Formula %q has invalid response %q", raw, resp)
	}

	f := &Formula{
		Raw:       raw,
		Response:  resp,
		Intercept: true,
	}

	seen := make(map[string]bool)
	for _, tok := range splitTop(sides[1]) {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "":
			return nil, errors.Errorf("Formula %q has an empty term", raw)
		case tok == "1":
			f.Intercept = true
		case tok == "0" || tok == "-1":
			f.Intercept = false
		case strings.HasPrefix(tok, "("):
			g, err := parseGroupTerm(tok)
			if err != nil {
				return nil, errors.Wrapf(err, "Formula %q", raw)
			}
			f.Groups = append(f.Groups, *g)
		default:
			terms, err := parseFixedTerm(tok)
			if err != nil {
				return nil, errors.Wrapf(err, "Formula %q", raw)
			}
			for _, t := range terms {
				if key := t.String(); !seen[key] {
					seen[key] = true
					f.Terms = append(f.Terms, t)
				}
			}
		}
	}

	sortTerms(f.Terms)
	sort.Slice(f.Groups, func(i, j int) bool {
		return f.Groups[i].String() < f.Groups[j].String()
	})

	return f, nil
}

// Canonical renders the normalized formula text used in cache keys.
func (f *Formula) Canonical() string {
	var sb strings.Builder
	sb.WriteString(f.Response)
	sb.WriteString(" ~ ")

	parts := []string{}
	if f.Intercept {
		parts = append(parts, "1")
	} else {
		parts = append(parts, "0")
	}
	for _, t := range f.Terms {
		parts = append(parts, t.String())
	}
	for _, g := range f.Groups {
		parts = append(parts, g.String())
	}
	sb.WriteString(strings.Join(parts, " + "))

	return sb.String()
}

// Vars returns every variable name the formula references (response,
// predictors, grouping factors), deduplicated, in first-use order.
func (f *Formula) Vars() []string {
	out := []string{f.Response}
	seen := map[string]bool{f.Response: true}

	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	for _, t := range f.Terms {
		for _, v := range t.Vars {
			add(v)
		}
	}
	for _, g := range f.Groups {
		for _, t := range g.Terms {
			for _, v := range t.Vars {
				add(v)
			}
		}
		add(g.Group)
	}

	return out
}

// splitTop splits on + at paren depth zero.
func splitTop(s string) []string {
	out := []string{}
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case '+':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// parseFixedTerm handles "a", "a:b", and "a*b" (crossing). Crossing of k
// variables expands to every non-empty subset.
func parseFixedTerm(tok string) ([]Term, error) {
	if strings.Contains(tok, "*") {
		vars, err := identList(tok, "*")
		if err != nil {
			return nil, err
		}
		return crossTerms(vars), nil
	}

	vars, err := identList(tok, ":")
	if err != nil {
		return nil, err
	}
	sort.Strings(vars)
	return []Term{{Vars: vars}}, nil
}

// crossTerms expands a*b*... into all non-empty variable subsets.
func crossTerms(vars []string) []Term {
	out := []Term{}
	n := len(vars)
	for mask := 1; mask < (1 << n); mask++ {
		sub := []string{}
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				sub = append(sub, vars[i])
			}
		}
		sort.Strings(sub)
		out = append(out, Term{Vars: sub})
	}
	sortTerms(out)
	return out
}

// parseGroupTerm handles "(1|g)", "(1+a|g)", "(0+a|g)".
func parseGroupTerm(tok string) (*GroupTerm, error) {
	if !strings.HasPrefix(tok, "(") || !strings.HasSuffix(tok, ")") {
		return nil, errors.Errorf("Malformed group term %q", tok)
	}
	inner := tok[1 : len(tok)-1]

	halves := strings.Split(inner, "|")
	if len(halves) != 2 {
		return nil, errors.Errorf("Group term %q must have exactly one |", tok)
	}

	group := strings.TrimSpace(halves[1])
	if !validIdent(group) {
		return nil, errors.Errorf("Group term %q has invalid grouping factor", tok)
	}

	g := &GroupTerm{Intercept: true, Group: group}
	seen := make(map[string]bool)
	for _, part := range strings.Split(halves[0], "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "1":
			g.Intercept = true
		case "0", "-1":
			g.Intercept = false
		default:
			vars, err := identList(part, ":")
			if err != nil {
				return nil, errors.Wrapf(err, "Group term %q", tok)
			}
			sort.Strings(vars)
			t := Term{Vars: vars}
			if key := t.String(); !seen[key] {
				seen[key] = true
				g.Terms = append(g.Terms, t)
			}
		}
	}

	sortTerms(g.Terms)
	return g, nil
}

// identList splits on sep and validates every piece as an identifier.
func identList(s string, sep string) ([]string, error) {
	out := []string{}
	for _, p := range strings.Split(s, sep) {
		p = strings.TrimSpace(p)
		if !validIdent(p) {
			return nil, errors.Errorf("Invalid variable name %q", p)
		}
		out = append(out, p)
	}
	return out, nil
}

// sortTerms orders terms by interaction order, then name.
func sortTerms(terms []Term) {
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i].Vars) != len(terms[j].Vars) {
			return len(terms[i].Vars) < len(terms[j].Vars)
		}
		return terms[i].String() < terms[j].String()
	})
}

func validIdent(s string) bool {
	if len(s) < 1 {
		return false
	}
	for i, r := range s {
		alpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '.'
		digit := r >= '0' && r <= '9'
		if i == 0 && !alpha {
			return false
		}
		if !alpha && !digit {
			return false
		}
	}
	return true
}
