package shaders

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gekko3d/firefx/fxrt/rt/core"
)

var (
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	locationRegex    = regexp.MustCompile(`@location\s*\(\s*(\d+)\s*\)`)
	fieldRegex       = regexp.MustCompile(`(\w+)\s*:\s*([\w<>,\s]+?)\s*$`)
	lineCommentRegex = regexp.MustCompile(`//[^\n]*`)
)

var wgslFormats = map[string]core.VertexFormat{
	"f32":          core.FormatFloat32,
	"u32":          core.FormatUint32,
	"vec2f":        core.FormatFloat32x2,
	"vec2<f32>":    core.FormatFloat32x2,
	"array<f32,2>": core.FormatFloat32x2,
	"vec3f":        core.FormatFloat32x3,
	"vec3<f32>":    core.FormatFloat32x3,
	"array<f32,3>": core.FormatFloat32x3,
	"vec4f":        core.FormatFloat32x4,
	"vec4<f32>":    core.FormatFloat32x4,
	"array<f32,4>": core.FormatFloat32x4,
}

// StructLayout reflects the named WGSL struct into a vertex layout. Fields
// with @location use it, others take their field index.
func StructLayout(code, name string) (core.VertexLayout, error) {
	code = lineCommentRegex.ReplaceAllString(code, "")
	for _, m := range structBlockRegex.FindAllStringSubmatch(code, -1) {
		if m[1] != name {
			continue
		}
		return parseFields(name, m[2])
	}
	return core.VertexLayout{}, fmt.Errorf("struct %s not found", name)
}

// splitFields splits a struct body on commas outside angle brackets.
func splitFields(body string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range body {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, body[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, body[start:])
	return out
}

func parseFields(name, body string) (core.VertexLayout, error) {
	var layout core.VertexLayout
	var offset uint32
	for _, raw := range splitFields(body) {
		field := strings.TrimSpace(raw)
		if field == "" {
			continue
		}
		loc := uint32(len(layout.Attributes))
		if m := locationRegex.FindStringSubmatch(field); m != nil {
			n, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				return core.VertexLayout{}, fmt.Errorf("struct %s: %w", name, err)
			}
			loc = uint32(n)
		}
		// Drop remaining attributes such as @interpolate(flat).
		for strings.HasPrefix(field, "@") {
			end := strings.IndexAny(field, " \t\n")
			if end < 0 {
				break
			}
			field = strings.TrimSpace(field[end:])
		}
		m := fieldRegex.FindStringSubmatch(field)
		if m == nil {
			return core.VertexLayout{}, fmt.Errorf("struct %s: cannot parse field %q", name, field)
		}
		typ := strings.Join(strings.Fields(m[2]), "")
		format, ok := wgslFormats[typ]
		if !ok {
			return core.VertexLayout{}, fmt.Errorf("struct %s: field %s has unsupported type %s", name, m[1], typ)
		}
		layout.Attributes = append(layout.Attributes, core.VertexAttribute{
			Name:     m[1],
			Format:   format,
			Offset:   offset,
			Location: loc,
		})
		offset += format.Size()
	}
	layout.Stride = offset
	return layout, nil
}
