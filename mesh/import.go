package mesh

import (
	"fmt"
	"path/filepath"
	"strings"

	mgl "github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/ikemen-engine/waterdemo/resource"
)

// ImportedMesh holds vertices in StandardLayout. Material is -1 when unset.
type ImportedMesh struct {
	Name     string
	Vertices []float32
	Indices  []uint32
	Material int
}

// ImportedMaterial references texture files by path; an empty path is an unset slot.
type ImportedMaterial struct {
	Name         string
	Albedo       mgl.Vec3
	Emissive     mgl.Vec3
	Smoothness   float32
	AlbedoPath   string
	EmissivePath string
	SpecularPath string
	NormalPath   string
	BumpPath     string
}

type ImportedScene struct {
	Meshes    []ImportedMesh
	Materials []ImportedMaterial
}

// Importer reads a model file into flattened meshes and materials.
type Importer interface {
	Import(path string) (*ImportedScene, error)
}

// LoadModel imports path once and registers one mesh with a submesh per imported
// mesh, its materials, and a model tying them together.
func (r *Registry) LoadModel(path string) (uint32, error) {
	if idx, ok := r.loaded[path]; ok {
		return idx, nil
	}
	sc, err := r.importer.Import(path)
	if err != nil {
		return resource.InvalidIndex, fmt.Errorf("import %s: %w", path, err)
	}
	if len(sc.Meshes) == 0 {
		return resource.InvalidIndex, fmt.Errorf("import %s: no meshes", path)
	}

	materials := make([]uint32, len(sc.Materials))
	for i, im := range sc.Materials {
		materials[i] = r.AddMaterial(r.material(im))
	}

	m := Mesh{Name: filepath.Base(path)}
	model := Model{}
	for _, im := range sc.Meshes {
		m.SubMeshes = append(m.SubMeshes, SubMesh{Layout: StandardLayout(), Vertices: im.Vertices, Indices: im.Indices})
		mat := r.FallbackMaterial()
		if im.Material >= 0 && im.Material < len(materials) {
			mat = materials[im.Material]
		}
		model.Materials = append(model.Materials, mat)
	}
	model.Mesh = r.AddMesh(m)
	idx := r.AddModel(model)
	r.loaded[path] = idx
	r.log.Info("model loaded", zap.String("path", path), zap.Int("submeshes", len(sc.Meshes)), zap.Int("materials", len(sc.Materials)))
	return idx, nil
}

func (r *Registry) material(im ImportedMaterial) Material {
	m := NewMaterial(im.Name, im.Albedo)
	m.Emissive = im.Emissive
	m.Smoothness = im.Smoothness
	load := func(path string) uint32 {
		if path == "" {
			return resource.InvalidIndex
		}
		return r.cache.LoadTexture(path)
	}
	m.AlbedoTexture = load(im.AlbedoPath)
	m.EmissiveTexture = load(im.EmissivePath)
	m.SpecularTexture = load(im.SpecularPath)
	m.NormalTexture = load(im.NormalPath)
	m.BumpTexture = load(im.BumpPath)
	return m
}

// GLTFImporter reads glTF 2.0 files, one imported mesh per primitive.
type GLTFImporter struct{}

func (GLTFImporter) Import(path string) (*ImportedScene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	sc := &ImportedScene{}
	for _, gm := range doc.Meshes {
		for pi, prim := range gm.Primitives {
			im, err := importPrimitive(doc, prim)
			if err != nil {
				return nil, fmt.Errorf("mesh %q primitive %d: %w", gm.Name, pi, err)
			}
			if im == nil {
				continue
			}
			im.Name = gm.Name
			sc.Meshes = append(sc.Meshes, *im)
		}
	}
	for _, gmat := range doc.Materials {
		sc.Materials = append(sc.Materials, importMaterial(doc, dir, gmat))
	}
	return sc, nil
}

func importPrimitive(doc *gltf.Document, prim *gltf.Primitive) (*ImportedMesh, error) {
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, nil
	}
	pos, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, err
	}
	var normals [][3]float32
	if i, ok := prim.Attributes[gltf.NORMAL]; ok {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[i], nil); err != nil {
			return nil, err
		}
	}
	var uvs [][2]float32
	if i, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[i], nil); err != nil {
			return nil, err
		}
	}
	var tangents [][4]float32
	if i, ok := prim.Attributes[gltf.TANGENT]; ok {
		if tangents, err = modeler.ReadTangent(doc, doc.Accessors[i], nil); err != nil {
			return nil, err
		}
	}
	var indices []uint32
	if prim.Indices != nil {
		if indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil); err != nil {
			return nil, err
		}
	} else {
		indices = make([]uint32, len(pos))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	im := &ImportedMesh{Material: -1, Indices: indices, Vertices: make([]float32, 0, len(pos)*StandardFloats)}
	if prim.Material != nil {
		im.Material = *prim.Material
	}
	for i, p := range pos {
		var n [3]float32
		var uv [2]float32
		var t [3]float32
		if i < len(normals) {
			n = normals[i]
		}
		if i < len(uvs) {
			uv = uvs[i]
		}
		if i < len(tangents) {
			t = [3]float32{tangents[i][0], tangents[i][1], tangents[i][2]}
		}
		im.Vertices = appendVertex(im.Vertices, p, n, uv, t)
	}
	if len(tangents) == 0 && len(uvs) > 0 {
		GenerateTangents(im.Vertices, im.Indices)
	}
	return im, nil
}

func importMaterial(doc *gltf.Document, dir string, gmat *gltf.Material) ImportedMaterial {
	im := ImportedMaterial{Name: gmat.Name, Albedo: mgl.Vec3{1, 1, 1}, Smoothness: 0}
	texturePath := func(index int) string {
		if index < 0 || index >= len(doc.Textures) || doc.Textures[index].Source == nil {
			return ""
		}
		img := doc.Images[*doc.Textures[index].Source]
		if img.URI == "" || strings.HasPrefix(img.URI, "data:") {
			return ""
		}
		return filepath.Join(dir, filepath.FromSlash(img.URI))
	}
	if pbr := gmat.PBRMetallicRoughness; pbr != nil {
		if f := pbr.BaseColorFactor; f != nil {
			im.Albedo = mgl.Vec3{float32(f[0]), float32(f[1]), float32(f[2])}
		}
		if pbr.RoughnessFactor != nil {
			im.Smoothness = 1 - float32(*pbr.RoughnessFactor)
		}
		if pbr.BaseColorTexture != nil {
			im.AlbedoPath = texturePath(pbr.BaseColorTexture.Index)
		}
		if pbr.MetallicRoughnessTexture != nil {
			im.SpecularPath = texturePath(pbr.MetallicRoughnessTexture.Index)
		}
	}
	e := gmat.EmissiveFactor
	im.Emissive = mgl.Vec3{float32(e[0]), float32(e[1]), float32(e[2])}
	if gmat.EmissiveTexture != nil {
		im.EmissivePath = texturePath(gmat.EmissiveTexture.Index)
	}
	if gmat.NormalTexture != nil && gmat.NormalTexture.Index != nil {
		im.NormalPath = texturePath(*gmat.NormalTexture.Index)
	}
	if gmat.OcclusionTexture != nil && gmat.OcclusionTexture.Index != nil {
		im.BumpPath = texturePath(*gmat.OcclusionTexture.Index)
	}
	return im
}

// GenerateTangents fills the tangent of every StandardLayout vertex from its
// triangles' position and uv deltas.
func GenerateTangents(vertices []float32, indices []uint32) {
	count := len(vertices) / StandardFloats
	acc := make([]mgl.Vec3, count)
	at := func(i uint32, off int) []float32 {
		base := int(i)*StandardFloats + off
		return vertices[base:]
	}
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		if int(i0) >= count || int(i1) >= count || int(i2) >= count {
			continue
		}
		p0, p1, p2 := at(i0, 0), at(i1, 0), at(i2, 0)
		uv0, uv1, uv2 := at(i0, 6), at(i1, 6), at(i2, 6)
		e1 := mgl.Vec3{p1[0] - p0[0], p1[1] - p0[1], p1[2] - p0[2]}
		e2 := mgl.Vec3{p2[0] - p0[0], p2[1] - p0[1], p2[2] - p0[2]}
		du1, dv1 := uv1[0]-uv0[0], uv1[1]-uv0[1]
		du2, dv2 := uv2[0]-uv0[0], uv2[1]-uv0[1]
		det := du1*dv2 - du2*dv1
		if det == 0 {
			continue
		}
		tan := e1.Mul(dv2).Sub(e2.Mul(dv1)).Mul(1 / det)
		acc[i0] = acc[i0].Add(tan)
		acc[i1] = acc[i1].Add(tan)
		acc[i2] = acc[i2].Add(tan)
	}
	for i, t := range acc {
		n := mgl.Vec3{vertices[i*StandardFloats+3], vertices[i*StandardFloats+4], vertices[i*StandardFloats+5]}
		// Gram-Schmidt against the normal.
		t = t.Sub(n.Mul(n.Dot(t)))
		if t.Len() > 1e-6 {
			t = t.Normalize()
		}
		copy(vertices[i*StandardFloats+8:], t[:])
	}
}
