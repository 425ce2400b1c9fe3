// Package selector parses the CSS-like expressions used by site profiles
// into tagged variants, once, at load time.
package selector

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

// Selector locates candidate elements beneath a root selection.
type Selector interface {
	Select(root *goquery.Selection) *goquery.Selection
	String() string
}

// Class matches elements whose class list contains Name.
type Class struct{ Name string }

// ID matches the first element whose id equals Value.
type ID struct{ Value string }

// Attribute matches elements whose attribute Name equals Value.
type Attribute struct{ Name, Value string }

// Tag matches elements by tag name.
type Tag struct{ Name string }

// Compound is any other valid CSS selector group, evaluated by cascadia.
// When the CSS reading matches nothing, a leading ., # or [name=value] form is
// retried literally, so "#x y" still finds id="x y".
type Compound struct {
	Expr    string
	matcher cascadia.Selector
	literal Selector
}

// Invalid holds an expression that failed to parse. It never matches.
type Invalid struct {
	Expr string
	Err  error
}

var (
	identPattern     = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)
	tagPattern       = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
	attributePattern = regexp.MustCompile(`^\[\s*([A-Za-z_][A-Za-z0-9_:.-]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\]"'\s]*))\s*\]$`)
)

// Parse classifies expr. Simple class, id, attribute-equality and tag forms
// get dedicated variants; anything else must be valid CSS or start with
// ., # or [ (taken literally, as in ".md:flex" or "[data-role=by line]").
func Parse(expr string) (Selector, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("empty expression: %w", crawler.ErrSelector)
	}
	switch {
	case strings.HasPrefix(s, ".") && identPattern.MatchString(s[1:]):
		return Class{Name: s[1:]}, nil
	case strings.HasPrefix(s, "#") && identPattern.MatchString(s[1:]):
		return ID{Value: s[1:]}, nil
	case tagPattern.MatchString(s):
		return Tag{Name: strings.ToLower(s)}, nil
	}
	if m := attributePattern.FindStringSubmatch(s); m != nil {
		return Attribute{Name: strings.ToLower(m[1]), Value: m[2] + m[3] + m[4]}, nil
	}
	matcher, err := cascadia.Compile(s)
	if err != nil {
		if lit := literal(s); lit != nil {
			return lit, nil
		}
		return nil, fmt.Errorf("%q: %w: %w", s, crawler.ErrSelector, err)
	}
	return Compound{Expr: s, matcher: matcher, literal: literal(s)}, nil
}

// literal reads s by its leading character alone: the rest of a . or #
// expression is the class or id value verbatim, and [name=value] splits on
// the single "=". It returns nil when s has none of those shapes.
func literal(s string) Selector {
	switch {
	case strings.HasPrefix(s, "."):
		if name := s[1:]; name != "" {
			return Class{Name: name}
		}
	case strings.HasPrefix(s, "#"):
		if id := s[1:]; id != "" {
			return ID{Value: id}
		}
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		parts := strings.Split(s[1:len(s)-1], "=")
		if len(parts) != 2 {
			return nil
		}
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		if name == "" {
			return nil
		}
		return Attribute{Name: name, Value: strings.Trim(strings.TrimSpace(parts[1]), `"'`)}
	}
	return nil
}

// List is an ordered, priority-ranked sequence of selectors for one field.
type List []Selector

// ParseList parses every expression, keeping order. Failures become Invalid
// entries and are also returned so callers can log them.
func ParseList(exprs []string) (List, []error) {
	list := make(List, 0, len(exprs))
	var errs []error
	for _, expr := range exprs {
		sel, err := Parse(expr)
		if err != nil {
			errs = append(errs, err)
			list = append(list, Invalid{Expr: expr, Err: err})
			continue
		}
		list = append(list, sel)
	}
	return list, errs
}

// MustParseList is ParseList for expressions known to be valid.
func MustParseList(exprs ...string) List {
	list, errs := ParseList(exprs)
	if len(errs) > 0 {
		panic(errs[0])
	}
	return list
}

// Strings renders the list back to expressions.
func (l List) Strings() []string {
	out := make([]string, len(l))
	for i, s := range l {
		out[i] = s.String()
	}
	return out
}

// Config maps a field name (title, content, date, author, image, ...) to its selectors.
type Config map[string]List

// ParseConfig parses a raw field→expressions mapping. Field names are lowercased.
func ParseConfig(raw map[string][]string) (Config, []error) {
	if len(raw) == 0 {
		return nil, nil
	}
	cfg := make(Config, len(raw))
	var errs []error
	for field, exprs := range raw {
		list, listErrs := ParseList(exprs)
		for _, err := range listErrs {
			errs = append(errs, fmt.Errorf("field %s: %w", field, err))
		}
		cfg[strings.ToLower(strings.TrimSpace(field))] = list
	}
	return cfg, errs
}

// Fields returns the configured field names in sorted order.
func (c Config) Fields() []string {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Select implements Selector.
func (c Class) Select(root *goquery.Selection) *goquery.Selection {
	return root.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, name := range strings.Fields(s.AttrOr("class", "")) {
			if name == c.Name {
				return true
			}
		}
		return false
	})
}

func (c Class) String() string { return "." + c.Name }

// Select implements Selector.
func (i ID) Select(root *goquery.Selection) *goquery.Selection {
	return root.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == i.Value
	}).First()
}

func (i ID) String() string { return "#" + i.Value }

// Select implements Selector. The class attribute matches any of its tokens.
func (a Attribute) Select(root *goquery.Selection) *goquery.Selection {
	return root.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr(a.Name)
		if !ok {
			return false
		}
		if a.Name == "class" {
			for _, token := range strings.Fields(v) {
				if token == a.Value {
					return true
				}
			}
		}
		return v == a.Value
	})
}

func (a Attribute) String() string { return fmt.Sprintf("[%s=%q]", a.Name, a.Value) }

// Select implements Selector.
func (t Tag) Select(root *goquery.Selection) *goquery.Selection {
	return root.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return goquery.NodeName(s) == t.Name
	})
}

func (t Tag) String() string { return t.Name }

// Select implements Selector.
func (c Compound) Select(root *goquery.Selection) *goquery.Selection {
	var sel *goquery.Selection
	if c.matcher == nil {
		sel = root.Find(c.Expr)
	} else {
		sel = root.FindMatcher(c.matcher)
	}
	if sel.Length() == 0 && c.literal != nil {
		return c.literal.Select(root)
	}
	return sel
}

func (c Compound) String() string { return c.Expr }

// Select implements Selector; it always yields an empty selection.
func (i Invalid) Select(root *goquery.Selection) *goquery.Selection {
	return root.Slice(0, 0)
}

func (i Invalid) String() string { return i.Expr }
