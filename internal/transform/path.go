package transform

import (
	"fmt"
	"strconv"
	"strings"
)

// pathPart represents a part of a field path.
type pathPart struct {
	Name    string
	IsArray bool
	Index   int
}

// parseFieldPath parses a field path into parts.
// Supports dot notation and array indexing.
// Examples:
//   - "name" -> [{Name: "name"}]
//   - "user.name" -> [{Name: "user"}, {Name: "name"}]
//   - "users[0]" -> [{Name: "users", IsArray: true, Index: 0}]
//   - "[1].id" -> [{IsArray: true, Index: 1}, {Name: "id"}]
func parseFieldPath(path string) []pathPart {
	parser := &pathParser{path: path}
	return parser.parse()
}

type pathParser struct {
	path           string
	parts          []pathPart
	current        strings.Builder
	bracketContent strings.Builder
	inBracket      bool
}

func (p *pathParser) parse() []pathPart {
	for i := 0; i < len(p.path); i++ {
		p.processChar(p.path[i])
	}

	if p.current.Len() > 0 {
		p.parts = append(p.parts, pathPart{Name: p.current.String()})
	}

	return p.parts
}

func (p *pathParser) processChar(ch byte) {
	switch {
	case ch == '.' && !p.inBracket:
		p.flushName()
	case ch == '[':
		p.inBracket = true
		p.bracketContent.Reset()
	case ch == ']':
		p.handleCloseBracket()
	case p.inBracket:
		p.bracketContent.WriteByte(ch)
	default:
		p.current.WriteByte(ch)
	}
}

func (p *pathParser) flushName() {
	if p.current.Len() > 0 {
		p.parts = append(p.parts, pathPart{Name: p.current.String()})
		p.current.Reset()
	}
}

func (p *pathParser) handleCloseBracket() {
	if !p.inBracket {
		return
	}
	p.inBracket = false

	indexStr := p.bracketContent.String()
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		p.current.WriteString("[" + indexStr + "]")
		return
	}

	p.parts = append(p.parts, pathPart{
		Name:    p.current.String(),
		IsArray: true,
		Index:   index,
	})
	p.current.Reset()
}

// steps expands parts into single traversal steps: a map key or an index.
func steps(parts []pathPart) []pathPart {
	out := make([]pathPart, 0, len(parts)*2)
	for _, part := range parts {
		if part.Name != "" {
			out = append(out, pathPart{Name: part.Name})
		}
		if part.IsArray {
			out = append(out, pathPart{IsArray: true, Index: part.Index})
		}
	}
	return out
}

func parseSteps(path string) ([]pathPart, error) {
	s := steps(parseFieldPath(path))
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFieldPath, path)
	}
	return s, nil
}

// getValueAtPath retrieves a value at the given path.
func getValueAtPath(data interface{}, path string) (interface{}, error) {
	s, err := parseSteps(path)
	if err != nil {
		return nil, err
	}

	current := data
	for _, step := range s {
		current, err = traverse(current, step)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

func traverse(current interface{}, step pathPart) (interface{}, error) {
	switch v := current.(type) {
	case map[string]interface{}:
		if step.IsArray {
			return nil, fmt.Errorf("%w: expected array, got object", ErrInvalidDataType)
		}
		val, exists := v[step.Name]
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, step.Name)
		}
		return val, nil
	case []interface{}:
		if !step.IsArray {
			return nil, fmt.Errorf("%w: expected object, got array", ErrInvalidDataType)
		}
		if step.Index >= len(v) {
			return nil, fmt.Errorf("%w: index %d out of bounds", ErrFieldNotFound, step.Index)
		}
		return v[step.Index], nil
	default:
		return nil, fmt.Errorf("%w: cannot traverse into %T", ErrInvalidDataType, current)
	}
}

// setValueAtPath sets a value at the given path, creating intermediate
// objects and growing arrays as needed. It returns the possibly replaced
// root.
func setValueAtPath(data interface{}, path string, value interface{}) (interface{}, error) {
	s, err := parseSteps(path)
	if err != nil {
		return nil, err
	}
	return setStep(data, s, value)
}

func setStep(current interface{}, s []pathPart, value interface{}) (interface{}, error) {
	if len(s) == 0 {
		return value, nil
	}
	step := s[0]

	if step.IsArray {
		arr, ok := current.([]interface{})
		if !ok {
			if current != nil {
				return nil, fmt.Errorf("%w: expected array, got %T", ErrInvalidDataType, current)
			}
			arr = make([]interface{}, 0, step.Index+1)
		}
		for len(arr) <= step.Index {
			arr = append(arr, nil)
		}
		child, err := setStep(arr[step.Index], s[1:], value)
		if err != nil {
			return nil, err
		}
		arr[step.Index] = child
		return arr, nil
	}

	m, ok := current.(map[string]interface{})
	if !ok {
		if current != nil {
			return nil, fmt.Errorf("%w: expected object, got %T", ErrInvalidDataType, current)
		}
		m = make(map[string]interface{})
	}
	child, err := setStep(m[step.Name], s[1:], value)
	if err != nil {
		return nil, err
	}
	m[step.Name] = child
	return m, nil
}

// deleteValueAtPath removes the value at the given path. Removing an array
// element shifts the following elements. A missing path is not an error.
func deleteValueAtPath(data interface{}, path string) (interface{}, error) {
	s, err := parseSteps(path)
	if err != nil {
		return nil, err
	}
	return deleteStep(data, s), nil
}

func deleteStep(current interface{}, s []pathPart) interface{} {
	step := s[0]
	last := len(s) == 1

	switch v := current.(type) {
	case map[string]interface{}:
		if step.IsArray {
			return current
		}
		if last {
			delete(v, step.Name)
			return v
		}
		if child, ok := v[step.Name]; ok {
			v[step.Name] = deleteStep(child, s[1:])
		}
		return v
	case []interface{}:
		if !step.IsArray || step.Index >= len(v) {
			return current
		}
		if last {
			return append(v[:step.Index], v[step.Index+1:]...)
		}
		v[step.Index] = deleteStep(v[step.Index], s[1:])
		return v
	default:
		return current
	}
}

// deepCopyValue creates a deep copy of a decoded JSON value.
func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		dst := make(map[string]interface{}, len(val))
		for k, item := range val {
			dst[k] = deepCopyValue(item)
		}
		return dst
	case []interface{}:
		dst := make([]interface{}, len(val))
		for i, item := range val {
			dst[i] = deepCopyValue(item)
		}
		return dst
	default:
		return v
	}
}
