package transcode

import (
	"strings"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
)

// FlatColumnSpec is one remote table column. Name is the dotted path of a
// struct leaf or a plain top-level name. Type is the full remote type and
// Nullable mirrors Type.IsNullable.
type FlatColumnSpec struct {
	Name     string
	Type     chtype.Type
	Nullable bool
}

// NewFlatColumnSpec builds a spec, deriving Nullable from the type.
func NewFlatColumnSpec(name string, rt chtype.Type) FlatColumnSpec {
	return FlatColumnSpec{Name: name, Type: rt, Nullable: rt.IsNullable()}
}

// leafVisitor receives each flattened leaf of a schema walk.
type leafVisitor func(path string, t frame.ColumnType) error

// walkLeaves visits the leaves of a column type depth-first, in field order.
// Struct levels are expanded into dotted paths; nullability of a struct is
// pushed onto each of its leaves. Lists and scalars are leaves. The same
// walk drives schema derivation and frame encoding, so both agree on the
// column order.
func walkLeaves(path string, t frame.ColumnType, nullable bool, visit leafVisitor) error {
	base := t.StripNullable()
	nullable = nullable || t.IsNullable()
	if base.Kind != frame.KindStruct {
		if nullable {
			t = frame.NullableOf(t)
		}
		return visit(path, t)
	}
	for _, f := range base.Fields {
		if err := walkLeaves(path+frame.Separator+f.Name, f.Type, nullable, visit); err != nil {
			return err
		}
	}
	return nil
}

// DeriveRemoteSchema flattens a local schema into remote column specs.
//
// Struct columns expand into one column per leaf, named parent.child.
// Names must be unique at the top level and free of the separator; any
// dotted-name collision after flattening is a schema conflict.
func DeriveRemoteSchema(schema frame.Schema) ([]FlatColumnSpec, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	var specs []FlatColumnSpec
	seen := make(map[string]struct{})
	for _, f := range schema {
		err := walkLeaves(f.Name, f.Type, false, func(path string, t frame.ColumnType) error {
			if _, dup := seen[path]; dup {
				return errors.Newf(errors.ErrorTypeSchemaConflict, "flattened column %q is produced twice", path).
					WithColumn(path)
			}
			seen[path] = struct{}{}

			rt, err := ToRemote(t)
			if err != nil {
				return errors.InColumn(err, path)
			}
			specs = append(specs, NewFlatColumnSpec(path, rt))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// GroupFlatColumns is the inverse of DeriveRemoteSchema: dotted names are
// regrouped into struct columns, in the order each path segment is first
// seen. Leaf types are mapped with ToLocal. Synthesized structs are not
// nullable.
func GroupFlatColumns(specs []FlatColumnSpec, opts Options) (frame.Schema, error) {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	root, err := buildTrie(names)
	if err != nil {
		return nil, err
	}

	var convert func(n *trieNode, path string) (frame.ColumnType, error)
	convert = func(n *trieNode, path string) (frame.ColumnType, error) {
		if n.leaf >= 0 {
			spec := specs[n.leaf]
			lt, err := ToLocal(spec.Type, opts)
			if err != nil {
				return frame.ColumnType{}, errors.InColumn(err, path)
			}
			if spec.Nullable {
				lt = frame.NullableOf(lt)
			}
			return lt, nil
		}
		fields := make([]frame.Field, len(n.children))
		for i, ch := range n.children {
			ft, err := convert(ch, path+frame.Separator+ch.segment)
			if err != nil {
				return frame.ColumnType{}, err
			}
			fields[i] = frame.Field{Name: ch.segment, Type: ft}
		}
		return frame.StructOf(fields...), nil
	}

	schema := make(frame.Schema, len(root.children))
	for i, ch := range root.children {
		t, err := convert(ch, ch.segment)
		if err != nil {
			return nil, err
		}
		schema[i] = frame.Field{Name: ch.segment, Type: t}
	}
	return schema, nil
}

// GroupColumns regroups decoded leaf columns with dotted names into struct
// columns, mirroring GroupFlatColumns. Struct columns built here have no
// validity mask.
func GroupColumns(cols []*frame.Column) ([]*frame.Column, error) {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	root, err := buildTrie(names)
	if err != nil {
		return nil, err
	}

	var convert func(n *trieNode) *frame.Column
	convert = func(n *trieNode) *frame.Column {
		if n.leaf >= 0 {
			leaf := *cols[n.leaf]
			leaf.Name = n.segment
			return &leaf
		}
		children := make([]*frame.Column, len(n.children))
		fields := make([]frame.Field, len(n.children))
		for i, ch := range n.children {
			children[i] = convert(ch)
			fields[i] = frame.Field{Name: ch.segment, Type: children[i].Type}
		}
		return frame.NewStruct(n.segment, frame.StructOf(fields...), children, nil)
	}

	out := make([]*frame.Column, len(root.children))
	for i, ch := range root.children {
		out[i] = convert(ch)
	}
	return out, nil
}

type trieNode struct {
	segment  string
	leaf     int
	children []*trieNode
	index    map[string]*trieNode
}

func newTrieNode(segment string) *trieNode {
	return &trieNode{segment: segment, leaf: -1, index: make(map[string]*trieNode)}
}

// buildTrie splits dotted names into a path trie. A name that is both a
// leaf and the prefix of another name, a repeated name and an empty path
// segment are schema conflicts.
func buildTrie(names []string) (*trieNode, error) {
	root := newTrieNode("")
	for i, name := range names {
		segments := strings.Split(name, frame.Separator)
		node := root
		for depth, seg := range segments {
			if seg == "" {
				return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "column name %q has an empty path segment", name).
					WithColumn(name)
			}
			if node.leaf >= 0 {
				return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "column %q is both a leaf and a prefix of %q",
					names[node.leaf], name).WithColumn(name)
			}
			child, ok := node.index[seg]
			if !ok {
				child = newTrieNode(seg)
				node.index[seg] = child
				node.children = append(node.children, child)
			}
			node = child

			if depth == len(segments)-1 {
				switch {
				case node.leaf >= 0:
					return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "duplicate column %q", name).WithColumn(name)
				case len(node.children) > 0:
					return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "column %q is both a leaf and a prefix", name).
						WithColumn(name)
				}
				node.leaf = i
			}
		}
	}
	return root, nil
}
