package gpufilter

// Mat is a host-resident typed matrix.
//
// The zero value is an empty matrix that can be used as a filter
// destination; the filter allocates it with its output geometry.
type Mat struct {
	geom Geometry

	// Data holds the elements, row-major, channels interleaved,
	// little-endian, no row padding.
	Data []byte
}

// NewMat allocates a zeroed host matrix.
func NewMat(g Geometry) (*Mat, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Mat{geom: g, Data: make([]byte, g.Bytes())}, nil
}

// MatFromBytes wraps existing data. The slice must hold exactly g.Bytes().
func MatFromBytes(g Geometry, data []byte) (*Mat, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(data) != g.Bytes() {
		return nil, ErrGeometryMismatch
	}
	return &Mat{geom: g, Data: data}, nil
}

// Geometry returns the shape of the matrix.
func (m *Mat) Geometry() Geometry { return m.geom }

// Location returns Host.
func (m *Mat) Location() Location { return Host }

// Empty reports whether the matrix holds no elements.
func (m *Mat) Empty() bool { return m == nil || m.geom.Empty() }

// Create reshapes m to g, reusing the backing array when it is large enough.
// Element contents are unspecified afterwards.
func (m *Mat) Create(g Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	n := g.Bytes()
	if cap(m.Data) >= n {
		m.Data = m.Data[:n]
	} else {
		m.Data = make([]byte, n)
	}
	m.geom = g
	return nil
}

// Clone returns a deep copy.
func (m *Mat) Clone() *Mat {
	c := &Mat{geom: m.geom, Data: make([]byte, len(m.Data))}
	copy(c.Data, m.Data)
	return c
}

// Assign replaces m with the contents of o, sharing no memory.
func (m *Mat) Assign(o *Mat) {
	m.geom = o.geom
	m.Data = append(m.Data[:0], o.Data...)
}

// At returns channel c of pixel (x, y) as a normalized float.
func (m *Mat) At(x, y, c int) float32 {
	return LoadElem(m.Data, (y*m.geom.W+x)*m.geom.C+c, m.geom.Type)
}

// Set stores v into channel c of pixel (x, y).
func (m *Mat) Set(x, y, c int, v float32) {
	StoreElem(m.Data, (y*m.geom.W+x)*m.geom.C+c, m.geom.Type, v)
}

// RGBA returns pixel (x, y) in R, G, B, A order.
func (m *Mat) RGBA(x, y int) [4]float32 {
	return LoadRGBA(m.Data, m.geom, x, y)
}

// SetRGBA stores an R, G, B, A pixel at (x, y).
func (m *Mat) SetRGBA(x, y int, rgba [4]float32) {
	StoreRGBA(m.Data, m.geom, x, y, rgba)
}

// Fill sets every pixel to rgba.
func (m *Mat) Fill(rgba [4]float32) {
	for y := range m.geom.H {
		for x := range m.geom.W {
			m.SetRGBA(x, y, rgba)
		}
	}
}
