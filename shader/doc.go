// Package shader assembles and compiles the compute programs used by
// gpufilter.
//
// A program is a [Template]: an ordered list of named [Fragment]s
// (header, parameter block, bindings, helpers, body, entry point). Each
// fragment is a plain WGSL string that can be built and tested on its own.
// [Template.Assemble] concatenates them in a fixed order and substitutes
// specialization constants written as ${name}. [Compile] turns the result
// into SPIR-V with gogpu/naga and reports the bindings it declares.
//
// Matrix bindings are declared as arrays of 32-bit words. Element access
// goes through generated helpers (see [Accessors]) that switch over every
// gpufilter.ElemType and supported gpufilter.ColorFormat, so a shader
// body only ever sees normalized RGBA floats.
//
// The parameter block is generated from a Go struct by [ParamsFragment]
// and encoded by [EncodeParams], which guarantees host and device agree on
// the byte layout.
//
// Every program also carries a [Kernel]: a Go rendition of its body that
// the host executor in package compute runs when no GPU is available.
package shader
