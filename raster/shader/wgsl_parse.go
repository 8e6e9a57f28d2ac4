package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslTypeLayout is the byte size and alignment of a WGSL type.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// wgslPrimitiveLayoutMap maps the WGSL primitive types this engine accepts in
// resource declarations to their byte size and alignment per the WGSL
// specification (https://www.w3.org/TR/WGSL/#alignment-and-size).
var wgslPrimitiveLayoutMap = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},
}

// fragmentChannelMap maps a fragment entry's declared return type to the
// output channel count. Three-channel color targets do not exist in WebGPU,
// so vec3 is deliberately absent.
var fragmentChannelMap = map[string]int{
	"f32":       1,
	"vec2<f32>": 2,
	"vec2f":     2,
	"vec4<f32>": 4,
	"vec4f":     4,
}

var (
	// bindGroupDeclRegex captures group, binding, address space, variable
	// name, and type from declarations like:
	//   @group(0) @binding(1) var<storage, read> triangular_mesh: array<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name.
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name.
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// fragmentReturnRegex captures the declared return type of a @fragment
	// entry, skipping an optional @location attribute.
	fragmentReturnRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+\w+\s*\([^)]*\)\s*->\s*(?:@location\(\d+\)\s*)?([\w<>, ]+?)\s*[{;]`)

	// structBlockRegex matches struct declarations and captures name and body.
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes on struct fields.
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes on struct fields.
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field: optional attributes, name, colon, type.
	fieldRegex = regexp.MustCompile(`(?:@\w+\([^)]*\)\s*)*(\w+)\s*:\s*(.+)`)
)

// parseEntryPoint extracts the entry point function name for the given stage.
// The geometry stage contributes the pipeline's @vertex entry under the
// point-expansion model; the vertex stage never has a pipeline entry point.
func parseEntryPoint(source string, stage Stage) string {
	cleaned := stripComments(source)

	var re *regexp.Regexp
	switch stage {
	case StageGeometry:
		re = vertexEntryRegex
	case StageFragment:
		re = fragmentEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(cleaned); match != nil {
		return match[1]
	}
	return ""
}

// parseFragmentChannels infers the output channel count from the fragment
// entry point's declared return type. A direct scalar or vector return is
// read off the signature; a struct return must contain exactly one
// @location field, whose type is used instead.
func parseFragmentChannels(source string) (int, error) {
	cleaned := stripComments(source)

	match := fragmentReturnRegex.FindStringSubmatch(cleaned)
	if match == nil {
		return 0, &LinkError{Log: "fragment entry point declares no return type"}
	}
	typeName := strings.TrimSpace(match[1])

	if ch, ok := fragmentChannelMap[typeName]; ok {
		return ch, nil
	}

	// Struct return: a single @location field carries the output.
	for _, ps := range parseStructBlocks(cleaned) {
		if ps.name != typeName {
			continue
		}
		var outField *parsedField
		for i, f := range ps.fields {
			if f.isBuiltin || f.location < 0 {
				continue
			}
			if outField != nil {
				return 0, &LinkError{Log: fmt.Sprintf(
					"fragment output struct %s declares multiple color outputs; a single render target is supported", typeName)}
			}
			outField = &ps.fields[i]
		}
		if outField == nil {
			break
		}
		if ch, ok := fragmentChannelMap[outField.typeName]; ok {
			return ch, nil
		}
		return 0, &LinkError{Log: fmt.Sprintf(
			"fragment output type %s is not representable as a float32 color target", outField.typeName)}
	}

	return 0, &LinkError{Log: fmt.Sprintf(
		"fragment output type %s is not representable as a float32 color target", typeName)}
}

// resourceDecl is one parsed @group/@binding declaration.
type resourceDecl struct {
	group        int
	binding      int
	addressSpace string
	name         string
	typeName     string
	stage        Stage
}

// parseResourceDecls extracts all resource declarations from one stage source.
func parseResourceDecls(source string, stage Stage) []resourceDecl {
	cleaned := stripComments(source)
	matches := bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1)

	decls := make([]resourceDecl, 0, len(matches))
	for _, match := range matches {
		group, _ := strconv.Atoi(match[1])
		binding, _ := strconv.Atoi(match[2])
		decls = append(decls, resourceDecl{
			group:        group,
			binding:      binding,
			addressSpace: strings.TrimSpace(match[3]),
			name:         strings.TrimSpace(match[4]),
			typeName:     strings.TrimSpace(match[5]),
			stage:        stage,
		})
	}
	return decls
}

// parseBindingInterface merges the geometry and fragment stages' resource
// declarations into the program's binding interface and the group 0 layout
// entries. All declarations must live in group 0 and be buffer-backed
// (uniform or storage); a name declared by both stages must agree on slot
// and type.
func parseBindingInterface(geometry, fragment string) (map[string]BindingPoint, []wgpu.BindGroupLayoutEntry, error) {
	structSizes := computeStructSizes(parseStructBlocks(stripComments(geometry)))
	for name, layout := range computeStructSizes(parseStructBlocks(stripComments(fragment))) {
		structSizes[name] = layout
	}

	decls := parseResourceDecls(geometry, StageGeometry)
	decls = append(decls, parseResourceDecls(fragment, StageFragment)...)

	iface := make(map[string]BindingPoint, len(decls))
	bySlot := make(map[int]string, len(decls))

	for _, d := range decls {
		if d.group != 0 {
			return nil, nil, &LinkError{Log: fmt.Sprintf(
				"%s stage declares %q in bind group %d; only group 0 is supported", d.stage, d.name, d.group)}
		}

		var kind BindingKind
		switch {
		case d.addressSpace == "uniform":
			kind = BindingUniform
		case strings.HasPrefix(d.addressSpace, "storage"):
			kind = BindingStorage
		default:
			return nil, nil, &LinkError{Log: fmt.Sprintf(
				"%s stage declares %q with unsupported address space %q; only uniform and storage buffers are bindable", d.stage, d.name, d.addressSpace)}
		}

		point := BindingPoint{
			Binding: uint32(d.binding),
			Kind:    kind,
			Type:    d.typeName,
		}
		if layout, ok := resolveTypeLayout(d.typeName, structSizes); ok {
			point.MinBindingSize = layout.size
		}

		if prev, ok := iface[d.name]; ok {
			if prev.Binding != point.Binding || prev.Kind != point.Kind || prev.Type != point.Type {
				return nil, nil, &LinkError{Log: fmt.Sprintf(
					"variable %q is declared with conflicting slots or types across stages", d.name)}
			}
			continue
		}
		if other, ok := bySlot[d.binding]; ok && other != d.name {
			return nil, nil, &LinkError{Log: fmt.Sprintf(
				"binding %d is declared as both %q and %q", d.binding, other, d.name)}
		}

		iface[d.name] = point
		bySlot[d.binding] = d.name
	}

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(iface))
	for _, point := range iface {
		entry := wgpu.BindGroupLayoutEntry{
			Binding: point.Binding,
			// The geometry stage runs as the pipeline's vertex stage, so the
			// shared bind group must be visible to both pipeline stages.
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		}
		switch point.Kind {
		case BindingUniform:
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		case BindingStorage:
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		}
		entry.Buffer.MinBindingSize = point.MinBindingSize
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Binding < entries[j].Binding
	})

	return iface, entries, nil
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment using
// primitives and previously-computed struct layouts. Fixed-size arrays
// (array<T, N>) resolve to count×stride; runtime-sized arrays resolve to a
// single element stride, the minimum useful binding size.
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	if strings.HasPrefix(typeName, "array<") && strings.HasSuffix(typeName, ">") {
		inner := typeName[6 : len(typeName)-1]
		parts := strings.SplitN(inner, ",", 2)
		elemType := strings.TrimSpace(parts[0])

		elemLayout, ok := resolveTypeLayout(elemType, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		stride := roundUpAlign(elemLayout.align, elemLayout.size)

		if len(parts) == 2 {
			count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				return wgslTypeLayout{}, false
			}
			return wgslTypeLayout{count * stride, elemLayout.align}, true
		}
		return wgslTypeLayout{stride, elemLayout.align}, true
	}

	return wgslTypeLayout{}, false
}

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// parsedStruct is a struct block extracted from WGSL source.
type parsedStruct struct {
	name   string
	fields []parsedField
}

// parsedField is one field of a parsed struct.
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL
// source and parses their fields including @location and @builtin attributes.
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}
	return structs
}

// parseStructFields parses the body of a struct block into individual fields.
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var field parsedField
		field.isBuiltin = builtinRegex.MatchString(line)

		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			loc, err := strconv.Atoi(locMatch[1])
			if err == nil {
				field.location = loc
			}
		} else {
			field.location = -1
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}
	return fields
}

// computeStructSizes computes the byte size and alignment of all parsed
// structs, resolving cross-struct field dependencies iteratively.
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := make([]parsedStruct, len(structs))
	copy(remaining, structs)

	for {
		progress := false
		next := remaining[:0]

		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
				progress = true
			} else {
				next = append(next, ps)
			}
		}

		remaining = next
		if !progress || len(remaining) == 0 {
			break
		}
	}
	return resolved
}

// computeStructLayout computes one struct's layout per WGSL rules: each field
// is placed at the next aligned offset and the total is rounded up to the
// struct's alignment. A trailing runtime-sized array contributes its element
// stride when it is the only member, otherwise the fixed-prefix size.
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	offset := uint64(0)
	maxAlign := uint64(1)

	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}

		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			if strings.HasPrefix(field.typeName, "array<") && !strings.Contains(field.typeName, ",") {
				offset = roundUpAlign(maxAlign, offset)
				if offset == 0 {
					elemType := strings.TrimSpace(field.typeName[6 : len(field.typeName)-1])
					if elemLayout, elemOk := resolveTypeLayout(elemType, knownTypes); elemOk {
						return wgslTypeLayout{roundUpAlign(elemLayout.align, elemLayout.size), elemLayout.align}, true
					}
				}
				return wgslTypeLayout{offset, maxAlign}, true
			}
			return wgslTypeLayout{}, false
		}

		offset = roundUpAlign(fieldLayout.align, offset)
		offset += fieldLayout.size
		if fieldLayout.align > maxAlign {
			maxAlign = fieldLayout.align
		}
	}

	return wgslTypeLayout{roundUpAlign(maxAlign, offset), maxAlign}, true
}

// splitAtTopLevelCommas splits a string at commas not nested inside angle
// brackets, so types like array<vec3<f32>, 4> survive field splitting.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// stripComments removes both single-line (//) and block (/* */) comments.
// Block comments may be nested per the WGSL specification.
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

func stripLineComments(source string) string {
	var sb strings.Builder
	for line := range strings.SplitSeq(source, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	i := 0
	for i < len(source) {
		if i+1 < len(source) {
			if source[i] == '/' && source[i+1] == '*' {
				depth++
				i += 2
				continue
			}
			if source[i] == '*' && source[i+1] == '/' {
				if depth > 0 {
					depth--
				}
				i += 2
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
		i++
	}
	return sb.String()
}
