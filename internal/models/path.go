package models

import "fmt"

// PathKind tells how a target path was specified.
type PathKind int

// Path kinds.
const (
	PathAbsent PathKind = iota
	PathSingle
	PathMultiple
)

func (k PathKind) String() string {
	switch k {
	case PathSingle:
		return "single"
	case PathMultiple:
		return "multiple"
	default:
		return "absent"
	}
}

// TargetPath is the path of a target: absent, a single directory, or a
// list of directories. The zero value is absent.
type TargetPath struct {
	kind  PathKind
	paths []string
}

// NoPath returns an absent path.
func NoPath() TargetPath {
	return TargetPath{}
}

// SinglePath returns a path holding one directory.
func SinglePath(p string) TargetPath {
	return TargetPath{kind: PathSingle, paths: []string{p}}
}

// MultiplePaths returns a path holding a list of directories.
func MultiplePaths(ps ...string) TargetPath {
	return TargetPath{kind: PathMultiple, paths: append([]string(nil), ps...)}
}

// Kind returns how the path was specified.
func (p TargetPath) Kind() PathKind {
	return p.kind
}

// IsAbsent reports whether no path was set.
func (p TargetPath) IsAbsent() bool {
	return p.kind == PathAbsent
}

// Paths returns every directory referenced, flattening lists.
func (p TargetPath) Paths() []string {
	return append([]string(nil), p.paths...)
}

// Clone returns a copy that does not share the backing slice.
func (p TargetPath) Clone() TargetPath {
	return TargetPath{kind: p.kind, paths: p.Paths()}
}

func (p TargetPath) String() string {
	switch p.kind {
	case PathSingle:
		return p.paths[0]
	case PathMultiple:
		return fmt.Sprintf("%v", p.paths)
	default:
		return "<none>"
	}
}

// MarshalYAML writes null, a scalar or a sequence depending on the kind.
func (p TargetPath) MarshalYAML() (interface{}, error) {
	switch p.kind {
	case PathSingle:
		return p.paths[0], nil
	case PathMultiple:
		return p.Paths(), nil
	default:
		return nil, nil
	}
}

// ParseTargetPath converts a loosely typed document value into a TargetPath.
func ParseTargetPath(v interface{}) (TargetPath, error) {
	switch val := v.(type) {
	case nil:
		return NoPath(), nil
	case TargetPath:
		return val, nil
	case string:
		return SinglePath(val), nil
	case []string:
		return MultiplePaths(val...), nil
	case []interface{}:
		paths := make([]string, 0, len(val))
		for _, el := range val {
			s, ok := el.(string)
			if !ok {
				return NoPath(), fmt.Errorf("path list element %v is %T, expected string", el, el)
			}
			paths = append(paths, s)
		}
		return MultiplePaths(paths...), nil
	default:
		return NoPath(), fmt.Errorf("path %v is %T, expected string or list of strings", v, v)
	}
}
