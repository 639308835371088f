package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpufilter"
)

// Access selects how a storage binding is declared.
type Access uint8

const (
	// ReadOnly is a read-only array<u32> of matrix words.
	ReadOnly Access = iota

	// WriteOnly is an array<atomic<u32>> of matrix words. Whole words are
	// written with atomicStore; sub-word elements are merged into their word
	// with a compare-exchange loop so neighbouring invocations never clobber
	// each other's bytes. Only load, store and compare-exchange are used,
	// which every backend including the wgpu software interpreter executes.
	WriteOnly

	// ReadFloat is a read-only array<f32> (kernel weights, tables).
	ReadFloat

	// AtomicInt is a read-write array<atomic<i32>> (counters).
	AtomicInt
)

func (a Access) decl() (space, elem string) {
	switch a {
	case ReadOnly:
		return "read", "u32"
	case WriteOnly:
		return "read_write", "atomic<u32>"
	case ReadFloat:
		return "read", "f32"
	case AtomicInt:
		return "read_write", "atomic<i32>"
	default:
		panic(fmt.Sprintf("shader: invalid access %d", a))
	}
}

// Header returns the fragment declaring format and element type constants.
// Values mirror gpufilter.ColorFormat and gpufilter.ElemType.
func Header() Fragment {
	var sb strings.Builder
	for f := gpufilter.Gray; f.Valid(); f++ {
		fmt.Fprintf(&sb, "const FORMAT_%s: u32 = %du;\n", f, uint8(f))
	}
	for _, t := range gpufilter.ElemTypes() {
		fmt.Fprintf(&sb, "const TYPE_%s: u32 = %du;\n", strings.ToUpper(t.String()), uint8(t))
	}
	return Fragment{Kind: KindHeader, Name: "formats", Source: sb.String()}
}

// Storage declares buffer <name>_data at the given binding.
func Storage(name string, binding uint32, access Access) Fragment {
	space, elem := access.decl()
	return Fragment{
		Kind: KindBindings,
		Name: name,
		Source: fmt.Sprintf("@group(0) @binding(%d) var<storage, %s> %s_data: array<%s>;",
			binding, space, name, elem),
	}
}

// Accessors generates element and pixel helpers for a matrix binding.
//
// For a ReadOnly binding it emits:
//
//	fn load_elem_<name>(idx: u32, t: u32) -> f32
//	fn load_rgba_<name>(x: i32, y: i32, w: i32, cstep: i32, format: i32, t: i32) -> vec4<f32>
//
// For a WriteOnly binding it emits the store_elem_/store_rgba_ pair.
// The switches cover every element type and every supported format.
func Accessors(name string, access Access) Fragment {
	var sb strings.Builder
	switch access {
	case ReadOnly:
		writeLoadElem(&sb, name)
		sb.WriteByte('\n')
		writeLoadRGBA(&sb, name)
	case WriteOnly:
		writeStoreElem(&sb, name)
		sb.WriteByte('\n')
		writeStoreRGBA(&sb, name)
	default:
		panic(fmt.Sprintf("shader: accessors need a matrix binding, got access %d", access))
	}
	return Fragment{Kind: KindHelpers, Name: name + " accessors", Source: sb.String()}
}

func writeLoadElem(sb *strings.Builder, name string) {
	fmt.Fprintf(sb, "fn load_elem_%s(idx: u32, t: u32) -> f32 {\n", name)
	sb.WriteString("    var v: f32 = 0.0;\n")
	sb.WriteString("    switch t {\n")
	for _, t := range gpufilter.ElemTypes() {
		fmt.Fprintf(sb, "        case %du: {\n", uint8(t))
		sb.WriteString(loadElemCase(name, t))
		sb.WriteString("        }\n")
	}
	sb.WriteString("        default: {}\n")
	sb.WriteString("    }\n")
	sb.WriteString("    return v;\n")
	sb.WriteString("}\n")
}

func loadElemCase(name string, t gpufilter.ElemType) string {
	const ind = "            "
	switch t {
	case gpufilter.Int8:
		return fmt.Sprintf(ind+"v = f32((%s_data[idx >> 2u] >> ((idx & 3u) * 8u)) & 255u) / 255.0;\n", name)
	case gpufilter.Int16:
		return fmt.Sprintf(ind+"v = f32((%s_data[idx >> 1u] >> ((idx & 1u) * 16u)) & 65535u) / 65535.0;\n", name)
	case gpufilter.Float16:
		return fmt.Sprintf(ind+"let h = unpack2x16float(%s_data[idx >> 1u]);\n", name) +
			ind + "v = select(h.x, h.y, (idx & 1u) == 1u);\n"
	case gpufilter.Float32:
		return fmt.Sprintf(ind+"v = bitcast<f32>(%s_data[idx]);\n", name)
	default:
		panic(fmt.Sprintf("shader: invalid element type %d", t))
	}
}

func writeStoreElem(sb *strings.Builder, name string) {
	fmt.Fprintf(sb, "fn store_elem_%s(idx: u32, t: u32, v: f32) {\n", name)
	sb.WriteString("    switch t {\n")
	for _, t := range gpufilter.ElemTypes() {
		fmt.Fprintf(sb, "        case %du: {\n", uint8(t))
		sb.WriteString(storeElemCase(name, t))
		sb.WriteString("        }\n")
	}
	sb.WriteString("        default: {}\n")
	sb.WriteString("    }\n")
	sb.WriteString("}\n")
}

func storeElemCase(name string, t gpufilter.ElemType) string {
	const ind = "            "
	// packed updates one lane of a shared word: elemsLog2 is log2 of the
	// elements per word, laneMask the lane's bit mask, width its bit width.
	packed := func(elemsLog2, laneMask, width, value string) string {
		return fmt.Sprintf(ind+"let word = idx >> %s;\n", elemsLog2) +
			fmt.Sprintf(ind+"let shift = (idx & ((1u << %s) - 1u)) * %s;\n", elemsLog2, width) +
			fmt.Sprintf(ind+"let lane = %s << shift;\n", laneMask) +
			fmt.Sprintf(ind+"let bits = (%s) << shift;\n", value) +
			fmt.Sprintf(ind+"var old = atomicLoad(&%s_data[word]);\n", name) +
			ind + "loop {\n" +
			fmt.Sprintf(ind+"    let r = atomicCompareExchangeWeak(&%s_data[word], old, (old & ~lane) | bits);\n", name) +
			ind + "    if (r.exchanged) {\n" +
			ind + "        break;\n" +
			ind + "    }\n" +
			ind + "    old = r.old_value;\n" +
			ind + "}\n"
	}
	switch t {
	case gpufilter.Int8:
		return packed("2u", "255u", "8u", "u32(clamp(v, 0.0, 1.0) * 255.0 + 0.5)")
	case gpufilter.Int16:
		return packed("1u", "65535u", "16u", "u32(clamp(v, 0.0, 1.0) * 65535.0 + 0.5)")
	case gpufilter.Float16:
		return packed("1u", "65535u", "16u", "pack2x16float(vec2<f32>(v, 0.0)) & 65535u")
	case gpufilter.Float32:
		return fmt.Sprintf(ind+"atomicStore(&%s_data[idx], bitcast<u32>(v));\n", name)
	default:
		panic(fmt.Sprintf("shader: invalid element type %d", t))
	}
}

var rgbaComponents = [4]string{"x", "y", "z", "w"}

func writeLoadRGBA(sb *strings.Builder, name string) {
	fmt.Fprintf(sb, "fn load_rgba_%s(x: i32, y: i32, w: i32, cstep: i32, format: i32, t: i32) -> vec4<f32> {\n", name)
	sb.WriteString("    let base = u32((y * w + x) * cstep);\n")
	sb.WriteString("    let tt = u32(t);\n")
	sb.WriteString("    var rgba = vec4<f32>(0.0, 0.0, 0.0, 1.0);\n")
	sb.WriteString("    switch u32(format) {\n")
	for f := gpufilter.Gray; f.Valid(); f++ {
		info := f.Info()
		if !info.Supported {
			continue
		}
		fmt.Fprintf(sb, "        case %du: {\n", uint8(f))
		for i, off := range info.Offsets {
			if off < 0 {
				continue
			}
			fmt.Fprintf(sb, "            rgba.%s = load_elem_%s(base + %du, tt);\n", rgbaComponents[i], name, off)
		}
		sb.WriteString("        }\n")
	}
	sb.WriteString("        default: {}\n")
	sb.WriteString("    }\n")
	sb.WriteString("    return rgba;\n")
	sb.WriteString("}\n")
}

func writeStoreRGBA(sb *strings.Builder, name string) {
	fmt.Fprintf(sb, "fn store_rgba_%s(x: i32, y: i32, w: i32, cstep: i32, format: i32, t: i32, rgba: vec4<f32>) {\n", name)
	sb.WriteString("    let base = u32((y * w + x) * cstep);\n")
	sb.WriteString("    let tt = u32(t);\n")
	sb.WriteString("    switch u32(format) {\n")
	for f := gpufilter.Gray; f.Valid(); f++ {
		info := f.Info()
		if !info.Supported {
			continue
		}
		fmt.Fprintf(sb, "        case %du: {\n", uint8(f))
		if info.Channels == 4 {
			writeStoreWord(sb, name, info.Offsets)
		}
		if f == gpufilter.Gray {
			fmt.Fprintf(sb, "            store_elem_%s(base, tt, 0.299 * rgba.x + 0.587 * rgba.y + 0.114 * rgba.z);\n", name)
		} else {
			for i, off := range info.Offsets {
				if off < 0 {
					continue
				}
				fmt.Fprintf(sb, "            store_elem_%s(base + %du, tt, rgba.%s);\n", name, off, rgbaComponents[i])
			}
		}
		sb.WriteString("        }\n")
	}
	sb.WriteString("        default: {}\n")
	sb.WriteString("    }\n")
	sb.WriteString("}\n")
}

// writeStoreWord emits the Int8 fast path of a four channel pixel: the
// pixel fills one aligned word, which is written with a single atomicStore.
func writeStoreWord(sb *strings.Builder, name string, offsets [4]int) {
	fmt.Fprintf(sb, "            if (tt == %du) {\n", uint8(gpufilter.Int8))
	sb.WriteString("                let q = vec4<u32>(clamp(rgba, vec4<f32>(0.0), vec4<f32>(1.0)) * 255.0 + vec4<f32>(0.5));\n")
	sb.WriteString("                var word = 0u;\n")
	for i, off := range offsets {
		fmt.Fprintf(sb, "                word = word | (q.%s << %du);\n", rgbaComponents[i], off*8)
	}
	fmt.Fprintf(sb, "                atomicStore(&%s_data[base >> 2u], word);\n", name)
	sb.WriteString("                return;\n")
	sb.WriteString("            }\n")
}
