package deepcopy

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

// node is one step of a cascade plan: a source model copied into a
// destination model, reached through a relation of the parent node.
type node struct {
	path   string // dotted relation path; "" for the root
	src    *types.Model
	dst    *types.Model
	srcRel *types.Relation // nil for the root
	dstRel *types.Relation
	fields *FieldMap
	skip   map[string]bool // destination fields the engine sets itself

	hasOne  []*node
	hasMany []*node
}

type visitState int

const (
	notVisited visitState = iota
	visiting
	copied
)

// want is a requested relation with the nested relations requested under it.
type want struct {
	name string
	sub  []*want
}

// parsePaths turns dotted paths into a tree, preserving first-seen order.
func parsePaths(paths []string) ([]*want, error) {
	var root []*want
	for _, p := range paths {
		level := &root
		for seg := range strings.SplitSeq(p, ".") {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				return nil, fmt.Errorf("%w: empty segment in %q", types.ErrUnknownRelation, p)
			}
			var w *want
			for _, existing := range *level {
				if existing.name == seg {
					w = existing
					break
				}
			}
			if w == nil {
				w = &want{name: seg}
				*level = append(*level, w)
			}
			level = &w.sub
		}
	}
	return root, nil
}

type planner struct {
	byDest map[string]*FieldMap
	state  map[string]visitState
}

// buildPlan resolves the requested paths and the relations marked as
// cascading into a tree. It fails before any write if a relation is
// missing on either side or if the walk would re-enter a source model
// that is still being copied.
func buildPlan(src, dst *types.Model, paths []string, root *FieldMap, byDest map[string]*FieldMap) (*node, error) {
	wants, err := parsePaths(paths)
	if err != nil {
		return nil, err
	}
	p := &planner{byDest: byDest, state: make(map[string]visitState)}
	n := &node{src: src, dst: dst, fields: merge(byDest[dst.Name], root)}
	if err := p.expand(n, wants); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *planner) expand(n *node, wants []*want) error {
	if err := n.fields.check(n.src, n.dst); err != nil {
		return err
	}
	p.state[n.src.Name] = visiting
	defer func() { p.state[n.src.Name] = copied }()

	if n.skip == nil {
		n.skip = make(map[string]bool)
	}
	for _, c := range n.dst.Conditions {
		n.skip[c.Field] = true
	}

	for _, w := range cascadeSet(n.src, wants) {
		srcRel, ok := n.src.Relation(w.name)
		if !ok {
			return fmt.Errorf("%w: %s has no relation %q", types.ErrUnknownRelation, n.src.Name, w.name)
		}
		dstRel, ok := n.dst.Relation(w.name)
		if !ok {
			return fmt.Errorf("%w: %s has no relation %q", types.ErrUnknownRelation, n.dst.Name, w.name)
		}
		if srcRel.Kind != dstRel.Kind {
			return fmt.Errorf("%w: %s.%s is %s but %s.%s is %s", types.ErrUnknownRelation,
				n.src.Name, w.name, srcRel.Kind, n.dst.Name, w.name, dstRel.Kind)
		}
		childSrc, err := n.src.Related(srcRel)
		if err != nil {
			return err
		}
		childDst, err := n.dst.Related(dstRel)
		if err != nil {
			return err
		}
		if p.state[childSrc.Name] == visiting {
			return fmt.Errorf("%w: %s.%s leads back to %s", types.ErrCyclicRelation, n.src.Name, w.name, childSrc.Name)
		}

		child := &node{
			path:   joinPath(n.path, w.name),
			src:    childSrc,
			dst:    childDst,
			srcRel: srcRel,
			dstRel: dstRel,
			fields: p.byDest[childDst.Name],
			skip:   make(map[string]bool),
		}
		switch dstRel.Kind {
		case types.HasOneKind:
			n.skip[dstRel.LinkField] = true
			n.hasOne = append(n.hasOne, child)
		default:
			child.skip[dstRel.LinkField] = true
			n.hasMany = append(n.hasMany, child)
		}
		if err := p.expand(child, w.sub); err != nil {
			return err
		}
	}
	return nil
}

// cascadeSet returns the requested relations in caller order followed by
// the model's cascading relations in declaration order.
func cascadeSet(m *types.Model, wants []*want) []*want {
	out := make([]*want, 0, len(wants))
	seen := make(map[string]bool, len(wants))
	for _, w := range wants {
		out = append(out, w)
		seen[w.name] = true
	}
	for _, rel := range m.Relations {
		if rel.Cascade && !seen[rel.Name] {
			out = append(out, &want{name: rel.Name})
		}
	}
	return out
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
