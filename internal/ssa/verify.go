package ssa

import "fmt"

// Verifier checks the four invariants spec §3.3 requires of every SSA
// function the Builder produces.
type Verifier struct {
	fn  *Func
	dom [][]bool
}

// NewVerifier prepares a Verifier over fn, computing dominance once.
func NewVerifier(fn *Func) *Verifier {
	return &Verifier{fn: fn, dom: Doms(fn)}
}

// Verify runs every check, returning the first violation found.
func (vf *Verifier) Verify() error {
	if err := vf.checkTerminators(); err != nil {
		return err
	}
	if err := vf.checkPhisFirst(); err != nil {
		return err
	}
	if err := vf.checkDominance(); err != nil {
		return err
	}
	if err := vf.checkUseCounts(); err != nil {
		return err
	}
	return nil
}

func (vf *Verifier) checkTerminators() error {
	for _, b := range vf.fn.Blocks {
		if len(b.Values) == 0 {
			return fmt.Errorf("block %d has no terminator", b.ID)
		}
		last := vf.fn.Values[b.Values[len(b.Values)-1]]
		if !last.Op.IsTerminator() {
			return fmt.Errorf("block %d does not end with a terminator (last op %d)", b.ID, last.Op)
		}
		for _, id := range b.Values[:len(b.Values)-1] {
			if vf.fn.Values[id].Op.IsTerminator() {
				return fmt.Errorf("block %d has a terminator before its last value", b.ID)
			}
		}
		switch b.Kind {
		case BlockPlain:
			if last.Op != OpJump {
				return fmt.Errorf("block %d kind plain but terminator op %d", b.ID, last.Op)
			}
		case BlockIf:
			if last.Op != OpBranch {
				return fmt.Errorf("block %d kind if but terminator op %d", b.ID, last.Op)
			}
		case BlockRet:
			if last.Op != OpReturn {
				return fmt.Errorf("block %d kind ret but terminator op %d", b.ID, last.Op)
			}
		}
	}
	return nil
}

func (vf *Verifier) checkPhisFirst() error {
	for _, b := range vf.fn.Blocks {
		seenNonPhi := false
		for _, id := range b.Values {
			op := vf.fn.Values[id].Op
			if op.IsPhi() {
				if seenNonPhi {
					return fmt.Errorf("block %d: phi %d appears after a non-phi value", b.ID, id)
				}
			} else {
				seenNonPhi = true
			}
		}
	}
	return nil
}

func (vf *Verifier) checkDominance() error {
	for _, b := range vf.fn.Blocks {
		for pos, id := range b.Values {
			v := vf.fn.Values[id]
			if v.Op == OpFwdRef {
				return fmt.Errorf("value %d: unresolved FwdRef survived to verification", id)
			}
			if v.Op.IsPhi() {
				if len(v.args) != len(b.Preds) {
					return fmt.Errorf("block %d: phi %d has %d args but block has %d preds", b.ID, id, len(v.args), len(b.Preds))
				}
				for i, a := range v.args {
					pred := b.Preds[i]
					if !Dominates(vf.dom, vf.fn.Values[a].Block, pred) && vf.fn.Values[a].Block != pred {
						return fmt.Errorf("phi %d arg %d (value %d) does not dominate predecessor block %d", id, i, a, pred)
					}
				}
				continue
			}
			for _, a := range v.args {
				defBlock := vf.fn.Values[a].Block
				if defBlock == b.ID {
					if !vf.definedBefore(a, id, b.ID) {
						return fmt.Errorf("value %d uses %d defined later in the same block %d", id, a, b.ID)
					}
					continue
				}
				if !Dominates(vf.dom, defBlock, b.ID) {
					return fmt.Errorf("value %d (block %d, pos %d) uses %d from non-dominating block %d", id, b.ID, pos, a, defBlock)
				}
			}
		}
	}
	return nil
}

func (vf *Verifier) definedBefore(defID, useID, block int) bool {
	for _, id := range vf.fn.Blocks[block].Values {
		if id == defID {
			return true
		}
		if id == useID {
			return false
		}
	}
	return false
}

func (vf *Verifier) checkUseCounts() error {
	counts := make([]int, len(vf.fn.Values))
	for _, v := range vf.fn.Values {
		for _, a := range v.args {
			counts[a]++
		}
	}
	for i, v := range vf.fn.Values {
		if counts[i] != v.uses {
			return fmt.Errorf("value %d use count mismatch: tracked %d, actual %d", i, v.uses, counts[i])
		}
	}
	return nil
}
