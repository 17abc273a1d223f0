package core

import (
	"fmt"
	"reflect"
	"strings"
)

type VertexFormat uint8

const (
	FormatUndefined VertexFormat = iota
	FormatFloat32
	FormatFloat32x2
	FormatFloat32x3
	FormatFloat32x4
	FormatUint32
)

func (f VertexFormat) String() string {
	switch f {
	case FormatFloat32:
		return "f32"
	case FormatFloat32x2:
		return "vec2<f32>"
	case FormatFloat32x3:
		return "vec3<f32>"
	case FormatFloat32x4:
		return "vec4<f32>"
	case FormatUint32:
		return "u32"
	}
	return "undefined"
}

// Size returns the byte size of one attribute of this format.
func (f VertexFormat) Size() uint32 {
	switch f {
	case FormatFloat32, FormatUint32:
		return 4
	case FormatFloat32x2:
		return 8
	case FormatFloat32x3:
		return 12
	case FormatFloat32x4:
		return 16
	}
	return 0
}

type VertexAttribute struct {
	Name     string
	Format   VertexFormat
	Offset   uint32
	Location uint32
}

// VertexLayout describes one interleaved vertex stream.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// Compare reports the first difference between l and other, or nil when
// they describe the same wire format. Offsets are compared only when both
// sides carry them.
func (l VertexLayout) Compare(other VertexLayout) error {
	if len(l.Attributes) != len(other.Attributes) {
		return fmt.Errorf("attribute count %d != %d", len(l.Attributes), len(other.Attributes))
	}
	for i, a := range l.Attributes {
		b := other.Attributes[i]
		if a.Name != b.Name {
			return fmt.Errorf("attribute %d: name %q != %q", i, a.Name, b.Name)
		}
		if a.Format != b.Format {
			return fmt.Errorf("attribute %q: format %s != %s", a.Name, a.Format, b.Format)
		}
		if a.Location != b.Location {
			return fmt.Errorf("attribute %q: location %d != %d", a.Name, a.Location, b.Location)
		}
	}
	if l.Stride != 0 && other.Stride != 0 && l.Stride != other.Stride {
		return fmt.Errorf("stride %d != %d", l.Stride, other.Stride)
	}
	return nil
}

func (l VertexLayout) String() string {
	parts := make([]string, len(l.Attributes))
	for i, a := range l.Attributes {
		parts[i] = fmt.Sprintf("@%d %s: %s +%d", a.Location, a.Name, a.Format, a.Offset)
	}
	return fmt.Sprintf("stride=%d {%s}", l.Stride, strings.Join(parts, ", "))
}

func formatOf(t reflect.Type) VertexFormat {
	switch t.Kind() {
	case reflect.Float32:
		return FormatFloat32
	case reflect.Uint32:
		return FormatUint32
	case reflect.Array:
		if t.Elem().Kind() != reflect.Float32 {
			return FormatUndefined
		}
		switch t.Len() {
		case 2:
			return FormatFloat32x2
		case 3:
			return FormatFloat32x3
		case 4:
			return FormatFloat32x4
		}
	}
	return FormatUndefined
}

// LayoutOf derives a vertex layout from a flat struct whose fields carry a
// `wgsl` tag. Locations follow field order.
func LayoutOf(v any) (VertexLayout, error) {
	t := reflect.TypeOf(v)
	if t.Kind() != reflect.Struct {
		return VertexLayout{}, fmt.Errorf("layout of %s: not a struct", t)
	}
	var layout VertexLayout
	var offset uint32
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("wgsl")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		format := formatOf(f.Type)
		if format == FormatUndefined {
			return VertexLayout{}, fmt.Errorf("layout of %s: field %s has unsupported type %s", t, f.Name, f.Type)
		}
		if uint32(f.Offset) != offset {
			return VertexLayout{}, fmt.Errorf("layout of %s: field %s is padded (offset %d, want %d)", t, f.Name, f.Offset, offset)
		}
		layout.Attributes = append(layout.Attributes, VertexAttribute{
			Name:     name,
			Format:   format,
			Offset:   offset,
			Location: uint32(i),
		})
		offset += format.Size()
	}
	layout.Stride = offset
	return layout, nil
}

var particleLayout = mustLayout(Particle{})

func mustLayout(v any) VertexLayout {
	l, err := LayoutOf(v)
	if err != nil {
		panic(err)
	}
	return l
}

// ParticleLayout is the layout shared by the simulate output and every
// visual pass input.
func ParticleLayout() VertexLayout {
	l := particleLayout
	l.Attributes = append([]VertexAttribute(nil), particleLayout.Attributes...)
	return l
}
