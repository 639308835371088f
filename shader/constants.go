package shader

import (
	"fmt"
	"strconv"
	"strings"
)

// Names of the workgroup size constants every entry point uses.
const (
	LocalSizeX = "local_size_x"
	LocalSizeY = "local_size_y"
	LocalSizeZ = "local_size_z"
)

// Constant is one specialization constant. Value must be int, int32,
// uint32, float32 or bool.
type Constant struct {
	Name  string
	Value any
}

// Constants is an ordered set of specialization constants. Later entries
// override earlier ones with the same name.
type Constants []Constant

// LocalSize returns the workgroup size constants.
func LocalSize(x, y, z uint32) Constants {
	return Constants{
		{LocalSizeX, int(x)},
		{LocalSizeY, int(y)},
		{LocalSizeZ, int(z)},
	}
}

// With returns a copy of c with name set to v.
func (c Constants) With(name string, v any) Constants {
	out := make(Constants, len(c), len(c)+1)
	copy(out, c)
	return append(out, Constant{name, v})
}

// Merge returns c followed by o.
func (c Constants) Merge(o Constants) Constants {
	out := make(Constants, 0, len(c)+len(o))
	out = append(out, c...)
	return append(out, o...)
}

// Lookup returns the WGSL literal for name.
func (c Constants) Lookup(name string) (string, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Name == name {
			return literal(c[i].Value), true
		}
	}
	return "", false
}

// Workgroup returns the local size encoded in c, or zeros when unset.
func (c Constants) Workgroup() [3]uint32 {
	var wg [3]uint32
	for i, name := range [3]string{LocalSizeX, LocalSizeY, LocalSizeZ} {
		s, ok := c.Lookup(name)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 32)
		if err == nil {
			wg[i] = uint32(n)
		}
	}
	return wg
}

func literal(v any) string {
	switch v := v.(type) {
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10) + "i"
	case uint32:
		return strconv.FormatUint(uint64(v), 10) + "u"
	case float32:
		s := strconv.FormatFloat(float64(v), 'g', -1, 32)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case bool:
		return strconv.FormatBool(v)
	default:
		panic(fmt.Sprintf("shader: unsupported constant type %T", v))
	}
}
