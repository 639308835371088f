package op

import (
	"fmt"

	"github.com/gogpu/gpufilter/shader"
)

// Binding names one storage binding of an operator program.
type Binding struct {
	Name   string
	Access shader.Access
}

// Layout describes an operator program in the standard shape: storage
// bindings 0..n-1 in order, the parameter block at n, accessors for every
// matrix binding, then helpers, the body and the 2D entry point.
type Layout struct {
	Name     string
	Params   any
	Bindings []Binding
	Helpers  []shader.Fragment
	Body     string

	// Width and Height bound the grid, Call runs per invocation; see
	// shader.Entry.
	Width, Height, Call string

	Kernel shader.Kernel
}

// Program assembles l into a program.
func (l Layout) Program() (shader.Program, error) {
	//nolint:gosec // G115: binding counts are tiny
	params, err := shader.ParamsFragment(uint32(len(l.Bindings)), l.Params)
	if err != nil {
		return shader.Program{}, fmt.Errorf("%s: %w", l.Name, err)
	}

	frags := []shader.Fragment{shader.Header(), params}
	for i, b := range l.Bindings {
		//nolint:gosec // G115: binding counts are tiny
		frags = append(frags, shader.Storage(b.Name, uint32(i), b.Access))
	}
	for _, b := range l.Bindings {
		if b.Access == shader.ReadOnly || b.Access == shader.WriteOnly {
			frags = append(frags, shader.Accessors(b.Name, b.Access))
		}
	}
	frags = append(frags, l.Helpers...)
	frags = append(frags,
		shader.Body(l.Name, l.Body),
		shader.Entry(l.Width, l.Height, l.Call),
	)

	return shader.Program{
		Template: shader.Template{Name: l.Name, Fragments: frags},
		Kernel:   l.Kernel,
		Params:   l.Params,
	}, nil
}

// Stage builds a stage from l. Assembly errors surface when the operator
// is constructed.
func (l Layout) Stage(local [3]uint32) Stage {
	prog, err := l.Program()
	return Stage{Program: prog, Bindings: len(l.Bindings), Local: local, Err: err}
}
