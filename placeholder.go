package vehicle3d

import (
	"math"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// 占位几何的参考尺寸（米），长 x 高 x 宽
var (
	BaseReferenceSize    = vec3.T{4.2, 0.6, 1.8}
	BaseExtendedSize     = vec3.T{4.8, 0.6, 1.8}
	WheelReferenceRadius = float32(0.35)
	WheelReferenceWidth  = float32(0.25)
	RoofReferenceSize    = vec3.T{2.0, 0.08, 1.5}
	SeatReferenceSize    = vec3.T{0.55, 0.9, 0.55}
	CargoReferenceSize   = vec3.T{1.6, 0.4, 1.2}
	LightReferenceSize   = vec3.T{0.05, 0.15, 0.35}
	SpeakerReferenceSize = vec3.T{0.25, 0.25, 0.12}
	placeholderSegments  = 24
)

// PlaceholderPart 占位几何的一个部件，网格身份在编写时已知，直接按区域赋材质
type PlaceholderPart struct {
	Name     string
	Zone     MaterialZone
	Geometry *Geometry
}

// PlaceholderFunc 由选项标识确定性地生成占位部件
type PlaceholderFunc func(option string) []PlaceholderPart

// NewBoxGeometry 以 center 为中心的长方体，每个面独立顶点以得到平直法线
func NewBoxGeometry(size, center vec3.T) *Geometry {
	hx, hy, hz := size[0]/2, size[1]/2, size[2]/2
	cx, cy, cz := center[0], center[1], center[2]
	corners := [8]vec3.T{
		{cx - hx, cy - hy, cz - hz},
		{cx + hx, cy - hy, cz - hz},
		{cx + hx, cy + hy, cz - hz},
		{cx - hx, cy + hy, cz - hz},
		{cx - hx, cy - hy, cz + hz},
		{cx + hx, cy - hy, cz + hz},
		{cx + hx, cy + hy, cz + hz},
		{cx - hx, cy + hy, cz + hz},
	}
	// 逆时针朝外
	faces := [6][4]int{
		{0, 3, 2, 1}, // -z
		{4, 5, 6, 7}, // +z
		{0, 4, 7, 3}, // -x
		{1, 2, 6, 5}, // +x
		{0, 1, 5, 4}, // -y
		{3, 7, 6, 2}, // +y
	}
	g := &Geometry{}
	for _, f := range faces {
		base := uint32(len(g.Vertices))
		for _, c := range f {
			g.Vertices = append(g.Vertices, corners[c])
		}
		g.TexCoords = append(g.TexCoords, vec2.T{0, 0}, vec2.T{1, 0}, vec2.T{1, 1}, vec2.T{0, 1})
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	g.ReComputeNormal()
	return g
}

// NewWheelGeometry 绕 X 轴的圆柱，带两个端面
func NewWheelGeometry(radius, width float32, segments int) *Geometry {
	if segments < 3 {
		segments = 3
	}
	g := &Geometry{}
	hw := width / 2
	ring := func(x float32) uint32 {
		base := uint32(len(g.Vertices))
		for i := 0; i < segments; i++ {
			a := 2 * math.Pi * float64(i) / float64(segments)
			g.Vertices = append(g.Vertices, vec3.T{x, radius * float32(math.Cos(a)), radius * float32(math.Sin(a))})
		}
		return base
	}
	seg := uint32(segments)
	left, right := ring(-hw), ring(hw)
	for i := uint32(0); i < seg; i++ {
		j := (i + 1) % seg
		g.Indices = append(g.Indices,
			left+i, left+j, right+j,
			left+i, right+j, right+i,
		)
	}
	// 端面
	lc := uint32(len(g.Vertices))
	g.Vertices = append(g.Vertices, vec3.T{-hw, 0, 0})
	rc := uint32(len(g.Vertices))
	g.Vertices = append(g.Vertices, vec3.T{hw, 0, 0})
	for i := uint32(0); i < seg; i++ {
		j := (i + 1) % seg
		g.Indices = append(g.Indices, lc, left+j, left+i)
		g.Indices = append(g.Indices, rc, right+i, right+j)
	}
	g.ReComputeNormal()
	return g
}

func basePlaceholder(option string) []PlaceholderPart {
	size := BaseReferenceSize
	if option == string(SubassemblyBaseExtended) {
		size = BaseExtendedSize
	}
	return []PlaceholderPart{
		{Name: "placeholder_body", Zone: ZoneBody, Geometry: NewBoxGeometry(size, vec3.T{0, 0.3 + size[1]/2, 0})},
	}
}

func wheelPlaceholder(option string) []PlaceholderPart {
	radius := WheelReferenceRadius
	width := WheelReferenceWidth
	switch SubassemblyId(option) {
	case SubassemblyWheelsChrome:
		radius += 0.01
	case SubassemblyWheelsOffroad:
		radius += 0.07
		width += 0.07
	}
	return []PlaceholderPart{
		{Name: "placeholder_tire", Zone: ZoneTrim, Geometry: NewWheelGeometry(radius, width, placeholderSegments)},
		{Name: "placeholder_rim", Zone: ZoneMetal, Geometry: NewWheelGeometry(radius*0.6, width*1.02, placeholderSegments)},
	}
}

func roofPlaceholder(option string) []PlaceholderPart {
	center := vec3.T{0, 1.5, 0}
	switch SubassemblyId(option) {
	case SubassemblyRoofPanoramic:
		return []PlaceholderPart{
			{Name: "placeholder_roof_glass", Zone: ZoneGlass, Geometry: NewBoxGeometry(RoofReferenceSize, center)},
		}
	case SubassemblyRoofConvertible:
		size := RoofReferenceSize
		size[1] = 0.03
		return []PlaceholderPart{
			{Name: "placeholder_soft_top", Zone: ZoneTrim, Geometry: NewBoxGeometry(size, center)},
		}
	}
	return []PlaceholderPart{
		{Name: "placeholder_roof", Zone: ZoneRoof, Geometry: NewBoxGeometry(RoofReferenceSize, center)},
	}
}

func seatPlaceholder(option string) []PlaceholderPart {
	size := SeatReferenceSize
	if option == string(SubassemblySeatsSport) {
		size[1] += 0.1
	}
	return []PlaceholderPart{
		{Name: "placeholder_seat_left", Zone: ZoneSeats, Geometry: NewBoxGeometry(size, vec3.T{0.2, 0.9 + size[1]/2, -0.4})},
		{Name: "placeholder_seat_right", Zone: ZoneSeats, Geometry: NewBoxGeometry(size, vec3.T{0.2, 0.9 + size[1]/2, 0.4})},
	}
}

func cargoPlaceholder(option string) []PlaceholderPart {
	if option == string(SubassemblyCargoRack) {
		bar := vec3.T{CargoReferenceSize[0], 0.04, 0.04}
		return []PlaceholderPart{
			{Name: "placeholder_rack_left", Zone: ZoneMetal, Geometry: NewBoxGeometry(bar, vec3.T{0, 1.6, -0.5})},
			{Name: "placeholder_rack_right", Zone: ZoneMetal, Geometry: NewBoxGeometry(bar, vec3.T{0, 1.6, 0.5})},
		}
	}
	return []PlaceholderPart{
		{Name: "placeholder_cargo_box", Zone: ZoneBody, Geometry: NewBoxGeometry(CargoReferenceSize, vec3.T{0, 1.6 + CargoReferenceSize[1]/2, 0})},
	}
}

func lightPlaceholder(option string) []PlaceholderPart {
	size := LightReferenceSize
	if option == string(SubassemblyLightingLed) {
		size[1] = 0.08
	}
	return []PlaceholderPart{
		{Name: "placeholder_light_left", Zone: ZoneLights, Geometry: NewBoxGeometry(size, vec3.T{2.1, 0.75, -0.6})},
		{Name: "placeholder_light_right", Zone: ZoneLights, Geometry: NewBoxGeometry(size, vec3.T{2.1, 0.75, 0.6})},
	}
}

func audioPlaceholder(option string) []PlaceholderPart {
	size := SpeakerReferenceSize
	if option == string(SubassemblyAudioPremium) {
		size = vec3.T{0.35, 0.35, 0.15}
	}
	return []PlaceholderPart{
		{Name: "placeholder_speaker", Zone: ZoneTrim, Geometry: NewBoxGeometry(size, vec3.T{-0.8, 1.0, 0})},
	}
}

// buildPlaceholder 生成占位节点，每个位置一份几何拷贝
func buildPlaceholder(name string, parts []PlaceholderPart, positions []vec3.T, mats *MaterialMap, releaser Releaser) *Node {
	root := NewNode(name)
	if len(positions) == 0 {
		positions = []vec3.T{{}}
	}
	for i, pos := range positions {
		n := NewNode(positionName(name, i, len(positions)))
		n.Translation = pos
		for _, p := range parts {
			g := p.Geometry
			if i > 0 {
				g = p.Geometry.Clone()
			}
			g.releaser = releaser
			m := &Mesh{Name: p.Name, Geometry: g}
			m.SetMaterial(mats.ForZone(p.Zone))
			n.Meshes = append(n.Meshes, m)
		}
		root.AddChild(n)
	}
	return root
}
