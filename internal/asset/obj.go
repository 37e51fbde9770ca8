package asset

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/udhos/gwob"
	"go.uber.org/zap"
)

// ParseOBJ reads a Wavefront OBJ stream into indexed geometry. Faces may use
// any of the v, v/vt, v//vn and v/vt/vn forms, with absolute or negative
// (relative) indices; polygons are triangulated by the parser. Meshes
// without normals get smooth normals computed from their triangles.
func ParseOBJ(name string, r io.Reader, log *zap.Logger) (*MeshData, error) {
	if log == nil {
		log = zap.NewNop()
	}
	obj, err := gwob.NewObjFromReader(name, r, &gwob.ObjParserOptions{
		Logger: func(msg string) { log.Debug("obj", zap.String("file", name), zap.String("msg", msg)) },
	})
	if err != nil {
		return nil, fmt.Errorf("parse obj: %w", err)
	}
	if len(obj.Indices) == 0 {
		return nil, errors.New("obj has no faces")
	}

	stride := obj.StrideSize / 4
	if stride < 3 {
		return nil, fmt.Errorf("obj: bad stride %d", obj.StrideSize)
	}
	pos := obj.StrideOffsetPosition / 4
	tex := obj.StrideOffsetTexture / 4
	nrm := obj.StrideOffsetNormal / 4

	count := len(obj.Coord) / stride
	out := &MeshData{
		Vertices: make([]Vertex, count),
		Indices:  make([]uint32, len(obj.Indices)),
	}
	for i := range out.Vertices {
		c := obj.Coord[i*stride : (i+1)*stride]
		v := Vertex{X: c[pos], Y: c[pos+1], Z: c[pos+2]}
		if obj.TextCoordFound {
			v.U, v.V = c[tex], c[tex+1]
		}
		if obj.NormCoordFound {
			v.Normal = EncodeNormalRGBA8(c[nrm], c[nrm+1], c[nrm+2])
		}
		out.Vertices[i] = v
	}
	for i, idx := range obj.Indices {
		if idx < 0 || idx >= count {
			return nil, fmt.Errorf("obj: index %d out of range", idx)
		}
		out.Indices[i] = uint32(idx)
	}
	if !obj.NormCoordFound {
		smoothNormals(out)
	}
	return out, nil
}

// smoothNormals assigns each vertex the normalised sum of the normals of the
// triangles that use it.
func smoothNormals(m *MeshData) {
	acc := make([]mgl32.Vec3, len(m.Vertices))
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		pa := vec(m.Vertices[a])
		n := vec(m.Vertices[b]).Sub(pa).Cross(vec(m.Vertices[c]).Sub(pa))
		acc[a] = acc[a].Add(n)
		acc[b] = acc[b].Add(n)
		acc[c] = acc[c].Add(n)
	}
	for i, n := range acc {
		if n.Len() == 0 {
			n = mgl32.Vec3{0, 1, 0}
		}
		n = n.Normalize()
		m.Vertices[i].Normal = EncodeNormalRGBA8(n[0], n[1], n[2])
	}
}

func vec(v Vertex) mgl32.Vec3 { return mgl32.Vec3{v.X, v.Y, v.Z} }
