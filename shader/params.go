package shader

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// ParamField is one 32-bit scalar of a parameter block.
type ParamField struct {
	Name   string
	Type   string // WGSL scalar type: i32, u32 or f32
	Offset int
}

// ParamLayout returns the fields of a parameter struct in declaration
// order. Only int32, uint32 and float32 fields are allowed, each tagged
// with `wgsl:"name"`; untagged fields use the lower-cased Go name.
func ParamLayout(sample any) ([]ParamField, error) {
	rt := reflect.TypeOf(sample)
	if rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("shader: params must be a struct, got %v", rt)
	}

	fields := make([]ParamField, 0, rt.NumField())
	for i := range rt.NumField() {
		f := rt.Field(i)
		name := f.Tag.Get("wgsl")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		var typ string
		switch f.Type.Kind() {
		case reflect.Int32:
			typ = "i32"
		case reflect.Uint32:
			typ = "u32"
		case reflect.Float32:
			typ = "f32"
		default:
			return nil, fmt.Errorf("shader: param field %s.%s has unsupported type %s", rt.Name(), f.Name, f.Type)
		}
		fields = append(fields, ParamField{Name: name, Type: typ, Offset: i * 4})
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("shader: params struct %s has no fields", rt.Name())
	}
	return fields, nil
}

// ParamsSize returns the encoded size of a parameter struct in bytes.
func ParamsSize(sample any) int {
	return reflect.Indirect(reflect.ValueOf(sample)).NumField() * 4
}

// ParamsFragment declares `struct Params` from sample and binds it as
// `p` at the given uniform binding index.
func ParamsFragment(binding uint32, sample any) (Fragment, error) {
	fields, err := ParamLayout(sample)
	if err != nil {
		return Fragment{}, err
	}

	var sb strings.Builder
	sb.WriteString("struct Params {\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "    %s: %s,\n", f.Name, f.Type)
	}
	sb.WriteString("}\n\n")
	fmt.Fprintf(&sb, "@group(0) @binding(%d) var<uniform> p: Params;\n", binding)

	return Fragment{
		Kind:   KindParams,
		Name:   reflect.Indirect(reflect.ValueOf(sample)).Type().Name(),
		Source: sb.String(),
	}, nil
}

// EncodeParams serializes a parameter struct field by field, little-endian,
// with no padding. The result is exactly what the shader's Params block
// reads.
func EncodeParams(v any) ([]byte, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("shader: params must be a struct, got %s", rv.Kind())
	}

	buf := make([]byte, rv.NumField()*4)
	for i := range rv.NumField() {
		f := rv.Field(i)
		var bits uint32
		switch f.Kind() {
		case reflect.Int32:
			bits = uint32(int32(f.Int()))
		case reflect.Uint32:
			bits = uint32(f.Uint())
		case reflect.Float32:
			bits = math.Float32bits(float32(f.Float()))
		default:
			return nil, fmt.Errorf("shader: param field %s has unsupported type %s", rv.Type().Field(i).Name, f.Type())
		}
		binary.LittleEndian.PutUint32(buf[i*4:], bits)
	}
	return buf, nil
}

// MustEncodeParams is EncodeParams for parameter structs known to be valid.
func MustEncodeParams(v any) []byte {
	b, err := EncodeParams(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Params reads a parameter block back into a struct of type T. Host
// kernels use it to see the same values the shader would.
func Params[T any](data []byte) T {
	var v T
	rv := reflect.ValueOf(&v).Elem()
	for i := range rv.NumField() {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		f := rv.Field(i)
		switch f.Kind() {
		case reflect.Int32:
			f.SetInt(int64(int32(bits)))
		case reflect.Uint32:
			f.SetUint(uint64(bits))
		case reflect.Float32:
			f.SetFloat(float64(math.Float32frombits(bits)))
		default:
			panic(fmt.Sprintf("shader: param field %s has unsupported type %s", rv.Type().Field(i).Name, f.Type()))
		}
	}
	return v
}
