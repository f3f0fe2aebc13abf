package meta

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

func sampleGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	o := g.Add(KindOutput, "")
	sc := scatteredSpheres(t, g, 3)
	tr := g.Add(KindTranslation, "lift")
	require.NoError(t, g.SetParam(tr, 1, FloatParam(2.5)))
	require.NoError(t, g.SetParam(tr, 3, EnumParam(composePre)))
	gu := g.Add(KindGroupUnion, "")
	require.NoError(t, g.Connect(tr, 0, sc))
	require.NoError(t, g.Connect(gu, 0, tr))
	require.NoError(t, g.Connect(o, 0, gu))
	require.NoError(t, g.SetParam(o, 0, FloatParam(0.5)))
	mustNode(t, g, tr).Position = [2]float32{120, -40}
	return g
}

func TestYAMLRoundTrip(t *testing.T) {
	g := sampleGraph(t)
	data, err := NewIOGraph(g, FullView{Pan: [2]float32{1, 2}, Zoom: 1.5}, 3, 1).Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "kind: stratified_placement")
	assert.Contains(t, string(data), "enum: Pre")
	assert.Contains(t, string(data), "variants: [Pre, Post]")

	r, err := UnmarshalIOGraph(data)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{1, 3}, r.Collapsed)
	assert.Equal(t, float32(1.5), r.Full.Zoom)

	back, err := r.Graph()
	require.NoError(t, err)
	assert.Equal(t, g.ToIO(), back.ToIO())
	assert.Equal(t, []string{composePre, composePost}, mustNode(t, back, 4).Params[3].Variants())

	a, err := g.Compile()
	require.NoError(t, err)
	b, err := back.Compile()
	require.NoError(t, err)
	assert.Equal(t, a.Graph.Nodes(), b.Graph.Nodes())
	assert.Equal(t, float32(0.5), b.VoxelExtent)

	// New nodes never reuse a loaded ID.
	id := back.Add(KindBox, "")
	assert.Equal(t, NodeID(g.Len()), id)
}

func TestUnmarshalRejectsMalformedRecords(t *testing.T) {
	data, err := NewIOGraph(sampleGraph(t), FullView{Zoom: 1}).Marshal()
	require.NoError(t, err)
	text := string(data)

	cases := map[string]string{
		"unknown field":    strings.Replace(text, "zoom:", "zoom_level:", 1),
		"two param values": strings.Replace(text, "variants: [Pre, Post]", "uint: 1", 1),
		"bare variants":    strings.Replace(text, "- enum: Pre", "- uint: 1", 1),
		"misspelled view":  strings.Replace(text, "full:", "fill:", 1),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalIOGraph([]byte(doc))
			assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
		})
	}
}

func TestFromIORejectsInvalidNodes(t *testing.T) {
	mutations := map[string]func(nodes []IONode){
		"unknown kind":         func(n []IONode) { n[1].Kind = "teapot" },
		"param count":          func(n []IONode) { n[1].Params = n[1].Params[:0] },
		"param type":           func(n []IONode) { n[1].Params[0] = UIntParam(1) },
		"missing parent link":  func(n []IONode) { n[1].ParentLinks = nil },
		"child slot count":     func(n []IONode) { n[1].ChildLinks = append(n[1].ChildLinks, nil) },
		"output with parent":   func(n []IONode) { n[0].ParentLinks = []*Link{{ToNode: 1}} },
		"dangling link":        func(n []IONode) { n[0].ChildLinks[0].ToNode = 42 },
		"duplicate ID":         func(n []IONode) { n[2].ID = n[1].ID },
		"child link one-sided": func(n []IONode) { n[0].ChildLinks[0].ToSlot++ },
		"parent link one-sided": func(n []IONode) {
			l := linkedChild(n)
			l.ParentLinks[0] = &Link{ToNode: l.ParentLinks[0].ToNode, ToSlot: l.ParentLinks[0].ToSlot + 1}
		},
		"empty beside linked parent": func(n []IONode) {
			l := linkedChild(n)
			l.ParentLinks = append(l.ParentLinks, nil)
		},
		"foreign enum variants": func(n []IONode) {
			p := &n[4].Params[3]
			p.variants = []string{composePre, "Sideways"}
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			nodes := sampleGraph(t).ToIO()
			mutate(nodes)
			_, err := FromIO(nodes)
			assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
		})
	}
}

// linkedChild returns the first node with a parent.
func linkedChild(nodes []IONode) *IONode {
	for i := range nodes {
		if len(nodes[i].ParentLinks) > 0 && nodes[i].ParentLinks[0] != nil {
			return &nodes[i]
		}
	}
	panic("graph has no linked nodes")
}

func TestFromIOAcceptsUnlinkedNodes(t *testing.T) {
	g := NewGraph()
	g.Add(KindOutput, "")
	box := g.Add(KindBox, "spare")
	nodes := g.ToIO()
	require.Equal(t, []*Link{nil}, nodes[box].ParentLinks)

	back, err := FromIO(nodes)
	require.NoError(t, err)
	assert.Equal(t, nodes, back.ToIO())
}

func TestFileRoundTrip(t *testing.T) {
	r := NewIOGraph(sampleGraph(t), FullView{Zoom: 1})
	for _, comp := range []Compression{CompNone, CompZlib, CompZstd} {
		data, err := EncodeFile(r, comp)
		require.NoError(t, err)
		assert.Equal(t, fileMagic, string(data[:8]))

		back, gotComp, err := DecodeFile(data)
		require.NoError(t, err)
		assert.Equal(t, comp, gotComp)
		assert.Equal(t, r.Nodes, back.Nodes)
	}
}

func TestFileRejectsCorruption(t *testing.T) {
	r := NewIOGraph(sampleGraph(t), FullView{Zoom: 1})
	data, err := EncodeFile(r, CompNone)
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-2] ^= 0x20
	_, _, err = DecodeFile(flipped)
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)

	_, _, err = DecodeFile(data[:fileHeaderSize-1])
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)

	badVersion := append([]byte(nil), data...)
	badVersion[8] = fileVersion + 1
	_, _, err = DecodeFile(badVersion)
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)

	compressed, err := EncodeFile(r, CompZstd)
	require.NoError(t, err)
	_, _, err = DecodeFile(compressed[:len(compressed)-4])
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rock.vgraph")
	g := sampleGraph(t)
	require.NoError(t, SaveFile(path, NewIOGraph(g, FullView{Zoom: 1}), CompZstd))

	r, err := LoadFile(path)
	require.NoError(t, err)
	back, err := r.Graph()
	require.NoError(t, err)
	assert.Equal(t, g.ToIO(), back.ToIO())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.vgraph"))
	assert.ErrorIs(t, err, voxerr.ErrIO)

	require.NoError(t, os.WriteFile(path, []byte("nodes: []\n"), 0o644))
	_, err = LoadFile(path)
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
}
