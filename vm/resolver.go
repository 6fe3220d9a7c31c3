package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Resolver: block structure and relative names
// ---------------------------------------------------------------------------

// BlockIDs hands out synthetic scope ids for lambdas and private blocks.
// Ids are assigned once per marker and stored on the instruction, so a
// block keeps its scope segment across re-resolution.
type BlockIDs struct {
	Next int
}

func (b *BlockIDs) assign(in *Instruction) {
	if in.Block == 0 {
		b.Next++
		in.Block = b.Next
	}
}

// blockFrame is one open block during a resolver pass.
type blockFrame struct {
	index   int
	segment string
}

// resolver walks a program twice. The first pass pairs block markers,
// writes skip lengths and registers public labels under their static
// scope. The second pass rewrites relative names to qualified ones.
type resolver struct {
	prog   *Program
	labels *Labels
	ids    *BlockIDs
	open   []blockFrame
}

// Resolve runs both resolver passes over the whole program. It is safe to
// call repeatedly; every structural field it writes is recomputed.
func Resolve(p *Program, labels *Labels, ids *BlockIDs) error {
	r := &resolver{prog: p, labels: labels, ids: ids}
	if err := r.structure(); err != nil {
		return err
	}
	n, err := r.relative()
	if err != nil {
		return err
	}
	log.Debugf("resolved %d instructions: %d labels, %d relative names", p.Len(), labels.Len(), n)
	return nil
}

func (r *resolver) errorAt(pos int, format string, args ...any) *StructuralError {
	return &StructuralError{Pos: pos, Ref: r.prog.Ref(pos), Msg: fmt.Sprintf(format, args...)}
}

func (r *resolver) prefix() []string {
	segs := make([]string, len(r.open))
	for i, f := range r.open {
		segs[i] = f.segment
	}
	return segs
}

// segment returns the scope segment a block marker opens.
func (r *resolver) segment(i int) (string, error) {
	in := &r.prog.Code[i]
	switch {
	case in.Op == OpLambda:
		r.ids.assign(in)
		return fmt.Sprintf("lambda#%d", in.Block), nil
	case in.Vis == Private:
		r.ids.assign(in)
		return fmt.Sprintf("priv#%d", in.Block), nil
	}
	label, ok := precedingLabel(r.prog, i)
	if !ok {
		return "", r.errorAt(i, "public definition has no label before it")
	}
	if strings.Contains(label, ScopeSep) || label == "" {
		return "", r.errorAt(i, "invalid label %q", label)
	}
	return label, nil
}

func (r *resolver) structure() error {
	r.open = r.open[:0]
	for i := range r.prog.Code {
		in := &r.prog.Code[i]
		switch in.Op {
		case OpBeginDefine, OpLambda:
			seg, err := r.segment(i)
			if err != nil {
				return err
			}
			q := Qualify(r.prefix(), seg)
			if in.Op == OpLambda || in.Vis == Public {
				in.Scope = q
			}
			if in.Op == OpBeginDefine && in.Vis == Public {
				r.labels.Define(q, i)
			}
			r.open = append(r.open, blockFrame{index: i, segment: seg})

		case OpEndDefine:
			if len(r.open) == 0 {
				return r.errorAt(i, "block end without an open block")
			}
			top := r.open[len(r.open)-1]
			r.open = r.open[:len(r.open)-1]
			r.prog.Code[top.index].Skip = i - top.index
		}
	}
	if len(r.open) > 0 {
		top := r.open[len(r.open)-1]
		return r.errorAt(top.index, "block is never closed")
	}
	return nil
}

func (r *resolver) relative() (int, error) {
	r.open = r.open[:0]
	count := 0
	for i := range r.prog.Code {
		in := &r.prog.Code[i]
		switch in.Op {
		case OpBeginDefine, OpLambda:
			seg, err := r.segment(i)
			if err != nil {
				return count, err
			}
			r.open = append(r.open, blockFrame{index: i, segment: seg})

		case OpEndDefine:
			r.open = r.open[:len(r.open)-1]

		case OpRefNamed:
			if in.Rel == "" {
				continue
			}
			name := strings.TrimPrefix(in.Rel, ScopeSep)
			q, _, ok := r.labels.lookupRelative(r.prefix(), name)
			if !ok {
				return count, r.errorAt(i, "cannot resolve %s from scope %q", in.Rel, strings.Join(r.prefix(), ScopeSep))
			}
			in.Text = q
			count++
		}
	}
	return count, nil
}

// precedingLabel returns the text pushed immediately before index i.
func precedingLabel(p *Program, i int) (string, bool) {
	if i == 0 || p.Code[i-1].Op != OpPushText {
		return "", false
	}
	return p.Code[i-1].Text, true
}
