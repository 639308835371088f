package shader

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// EntryPoint is the name every program's compute entry point must use.
const EntryPoint = "main"

// ErrCompile is the sentinel wrapped by every *CompileError.
var ErrCompile = errors.New("shader: compile failed")

// CompileError carries the compiler diagnostic for a rejected program.
type CompileError struct {
	Label      string
	Stage      string // parse, lower, validate, spirv or entry
	Diagnostic string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader: compile %s (%s): %s", e.Label, e.Stage, e.Diagnostic)
}

// Unwrap returns ErrCompile.
func (e *CompileError) Unwrap() error { return ErrCompile }

// BindingKind is the resource class of a declared binding.
type BindingKind uint8

const (
	// BindingStorageRead is a read-only storage buffer.
	BindingStorageRead BindingKind = iota

	// BindingStorageReadWrite is a read-write storage buffer.
	BindingStorageReadWrite

	// BindingUniform is a uniform buffer (the parameter block).
	BindingUniform
)

// String returns a string representation of the binding kind.
func (k BindingKind) String() string {
	switch k {
	case BindingStorageRead:
		return "storage-read"
	case BindingStorageReadWrite:
		return "storage-rw"
	case BindingUniform:
		return "uniform"
	default:
		return fmt.Sprintf("BindingKind(%d)", uint8(k))
	}
}

// Binding is one @group(0) resource declared by a module.
type Binding struct {
	Index uint32
	Kind  BindingKind
	Name  string
}

// Module is an immutable compiled program.
type Module struct {
	Name      string
	Source    string
	SPIRV     []uint32
	Bindings  []Binding
	Workgroup [3]uint32
	Digest    [32]byte
}

// StorageBindings returns the number of storage buffer bindings.
func (m *Module) StorageBindings() int {
	n := 0
	for _, b := range m.Bindings {
		if b.Kind != BindingUniform {
			n++
		}
	}
	return n
}

// Uniform returns the uniform binding, if any.
func (m *Module) Uniform() (Binding, bool) {
	for _, b := range m.Bindings {
		if b.Kind == BindingUniform {
			return b, true
		}
	}
	return Binding{}, false
}

// Digest returns the cache key of an assembled source.
func Digest(src string) [32]byte {
	return sha256.Sum256([]byte(src))
}

// Compile assembles t with consts and compiles it to SPIR-V.
// Identical inputs always produce identical modules.
func Compile(t Template, consts Constants) (*Module, error) {
	src, err := t.Assemble(consts)
	if err != nil {
		return nil, err
	}
	return CompileSource(t.Name, src)
}

// CompileSource compiles assembled WGSL source.
func CompileSource(label, src string) (*Module, error) {
	ast, err := naga.Parse(src)
	if err != nil {
		return nil, &CompileError{Label: label, Stage: "parse", Diagnostic: err.Error()}
	}
	irMod, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, &CompileError{Label: label, Stage: "lower", Diagnostic: err.Error()}
	}
	verrs, err := naga.Validate(irMod)
	if err != nil {
		return nil, &CompileError{Label: label, Stage: "validate", Diagnostic: err.Error()}
	}
	if len(verrs) > 0 {
		return nil, &CompileError{Label: label, Stage: "validate", Diagnostic: verrs[0].Error()}
	}

	ep := slices.IndexFunc(irMod.EntryPoints, func(e ir.EntryPoint) bool {
		return e.Name == EntryPoint && e.Stage == ir.StageCompute
	})
	if ep < 0 {
		return nil, &CompileError{Label: label, Stage: "entry", Diagnostic: "no @compute fn " + EntryPoint}
	}

	spirvBytes, err := naga.GenerateSPIRV(irMod, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, &CompileError{Label: label, Stage: "spirv", Diagnostic: err.Error()}
	}

	return &Module{
		Name:      label,
		Source:    src,
		SPIRV:     spirvWords(spirvBytes),
		Bindings:  bindingsOf(irMod),
		Workgroup: irMod.EntryPoints[ep].Workgroup,
		Digest:    Digest(src),
	}, nil
}

// spirvWords converts SPIR-V bytes to little-endian 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}

// bindingsOf lists group 0 resource bindings sorted by index.
func bindingsOf(m *ir.Module) []Binding {
	var out []Binding
	for _, gv := range m.GlobalVariables {
		if gv.Binding == nil || gv.Binding.Group != 0 {
			continue
		}
		var kind BindingKind
		switch gv.Space {
		case ir.SpaceUniform:
			kind = BindingUniform
		case ir.SpaceStorage:
			kind = BindingStorageReadWrite
			if gv.Access == ir.StorageRead {
				kind = BindingStorageRead
			}
		default:
			continue
		}
		out = append(out, Binding{Index: gv.Binding.Binding, Kind: kind, Name: gv.Name})
	}
	slices.SortFunc(out, func(a, b Binding) int { return int(a.Index) - int(b.Index) })
	return out
}
