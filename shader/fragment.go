package shader

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrTemplate is returned when a template cannot be assembled.
var ErrTemplate = errors.New("shader: invalid template")

// FragmentKind orders the sections of an assembled program.
type FragmentKind uint8

const (
	// KindHeader holds module-wide constants (format and type enums).
	KindHeader FragmentKind = iota

	// KindParams declares the parameter block and its uniform binding.
	KindParams

	// KindBindings declares storage buffers.
	KindBindings

	// KindHelpers holds shared functions such as element load/store.
	KindHelpers

	// KindBody holds the operator-specific transform.
	KindBody

	// KindEntry is the compute entry point.
	KindEntry
)

// String returns a string representation of the fragment kind.
func (k FragmentKind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindParams:
		return "params"
	case KindBindings:
		return "bindings"
	case KindHelpers:
		return "helpers"
	case KindBody:
		return "body"
	case KindEntry:
		return "entry"
	default:
		return fmt.Sprintf("FragmentKind(%d)", uint8(k))
	}
}

// repeatable reports whether a template may hold several fragments of k.
func (k FragmentKind) repeatable() bool {
	return k == KindBindings || k == KindHelpers
}

// Fragment is one named unit of shader source.
type Fragment struct {
	Kind   FragmentKind
	Name   string
	Source string
}

// Template is an ordered list of fragments making up one program.
//
// Fragments must appear in FragmentKind order. Header, params, body and
// entry occur exactly once; bindings and helpers may repeat.
type Template struct {
	Name      string
	Fragments []Fragment
}

// Validate checks fragment order and multiplicity.
func (t Template) Validate() error {
	var seen [KindEntry + 1]int
	last := KindHeader
	for _, f := range t.Fragments {
		if f.Kind > KindEntry {
			return fmt.Errorf("%w: %s: fragment %q has unknown kind %d", ErrTemplate, t.Name, f.Name, f.Kind)
		}
		if f.Kind < last {
			return fmt.Errorf("%w: %s: %s fragment %q after %s", ErrTemplate, t.Name, f.Kind, f.Name, last)
		}
		last = f.Kind
		seen[f.Kind]++
	}
	for k, n := range seen {
		kind := FragmentKind(k)
		switch {
		case n == 0 && !kind.repeatable():
			return fmt.Errorf("%w: %s: missing %s fragment", ErrTemplate, t.Name, kind)
		case n > 1 && !kind.repeatable():
			return fmt.Errorf("%w: %s: %d %s fragments", ErrTemplate, t.Name, n, kind)
		}
	}
	return nil
}

// Assemble concatenates the fragments and substitutes ${name}
// placeholders from consts. Every placeholder must resolve.
func (t Template) Assemble(consts Constants) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, f := range t.Fragments {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "// %s: %s\n", f.Kind, f.Name)
		sb.WriteString(strings.TrimSpace(f.Source))
		sb.WriteByte('\n')
	}

	var missing []string
	src := os.Expand(sb.String(), func(name string) string {
		v, ok := consts.Lookup(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s: unresolved constants %s", ErrTemplate, t.Name, strings.Join(missing, ", "))
	}
	return src, nil
}

// With returns a copy of t with extra fragments inserted in kind order,
// after any existing fragments of the same kind.
func (t Template) With(frags ...Fragment) Template {
	out := Template{Name: t.Name, Fragments: make([]Fragment, 0, len(t.Fragments)+len(frags))}
	out.Fragments = append(out.Fragments, t.Fragments...)
	for _, f := range frags {
		at := len(out.Fragments)
		for i, g := range out.Fragments {
			if g.Kind > f.Kind {
				at = i
				break
			}
		}
		out.Fragments = append(out.Fragments[:at], append([]Fragment{f}, out.Fragments[at:]...)...)
	}
	return out
}
