package asset

// Vertex is the interleaved layout shared by every mesh: position, packed
// normal and texture coordinates.
type Vertex struct {
	X, Y, Z float32
	Normal  uint32
	U, V    float32
}

// MeshData is CPU-side geometry. Indices may be empty for non-indexed draws.
type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
}

// EncodeNormalRGBA8 packs a unit normal into four unsigned bytes, mapping
// [-1,1] to [0,255]. The fourth component encodes w=0.
func EncodeNormalRGBA8(x, y, z float32) uint32 {
	pack := func(v float32) uint32 {
		return uint32((v*0.5 + 0.5) * 255)
	}
	return pack(x) | pack(y)<<8 | pack(z)<<16 | pack(0)<<24
}

// Cube returns a unit cube spanning [-1,1] on every axis: 24 vertices
// (4 per face, so normals stay flat) and 36 indices.
func Cube() *MeshData {
	type face struct {
		nx, ny, nz float32
		corners    [4][3]float32
	}
	faces := []face{
		{0, 0, 1, [4][3]float32{{-1, 1, 1}, {1, 1, 1}, {-1, -1, 1}, {1, -1, 1}}},
		{0, 0, -1, [4][3]float32{{-1, 1, -1}, {1, 1, -1}, {-1, -1, -1}, {1, -1, -1}}},
		{0, 1, 0, [4][3]float32{{-1, 1, 1}, {1, 1, 1}, {-1, 1, -1}, {1, 1, -1}}},
		{0, -1, 0, [4][3]float32{{-1, -1, 1}, {1, -1, 1}, {-1, -1, -1}, {1, -1, -1}}},
		{1, 0, 0, [4][3]float32{{1, -1, 1}, {1, 1, 1}, {1, -1, -1}, {1, 1, -1}}},
		{-1, 0, 0, [4][3]float32{{-1, -1, 1}, {-1, 1, 1}, {-1, -1, -1}, {-1, 1, -1}}},
	}
	uvs := [4][2]float32{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

	m := &MeshData{
		Vertices: make([]Vertex, 0, 24),
		Indices: []uint32{
			0, 2, 1, 1, 2, 3, 4, 5, 6, 5, 7, 6,
			8, 10, 9, 9, 10, 11, 12, 13, 14, 13, 15, 14,
			16, 18, 17, 17, 18, 19, 20, 21, 22, 21, 23, 22,
		},
	}
	for _, f := range faces {
		n := EncodeNormalRGBA8(f.nx, f.ny, f.nz)
		for i, c := range f.corners {
			m.Vertices = append(m.Vertices, Vertex{
				X: c[0], Y: c[1], Z: c[2],
				Normal: n,
				U:      uvs[i][0], V: uvs[i][1],
			})
		}
	}
	return m
}

// Quad returns a unit quad in the XZ plane facing +Y.
func Quad() *MeshData {
	n := EncodeNormalRGBA8(0, 1, 0)
	return &MeshData{
		Vertices: []Vertex{
			{X: -1, Z: -1, Normal: n, U: 0, V: 0},
			{X: 1, Z: -1, Normal: n, U: 1, V: 0},
			{X: -1, Z: 1, Normal: n, U: 0, V: 1},
			{X: 1, Z: 1, Normal: n, U: 1, V: 1},
		},
		Indices: []uint32{0, 2, 1, 1, 2, 3},
	}
}
