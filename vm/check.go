package vm

import (
	"fmt"

	"github.com/emberlang/ember/lang"
)

// CheckError reports a statically provable stack underflow: the
// instruction at IP needs more operands than any execution path can
// provide.
type CheckError struct {
	IP     int
	Op     lang.Op
	Needed int
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("stack underflow at ip=%d, op=%s, needed %d items",
		e.IP, e.Op, e.Needed)
}

// CheckOps runs a linear stack-effect scan over an instruction sequence
// starting from an empty stack. See CheckOpsWithInitial.
func CheckOps(ops []lang.Op) error {
	return CheckOpsWithInitial(ops, 0)
}

// CheckOpsWithInitial scans instructions in order, tracking the stack
// depth from each instruction's static effect, and reports the first
// instruction that must underflow. The scan is linear: it does not follow
// jumps, so the tracked depth is what straight-line execution would
// produce. The first instruction whose effect is not statically known (a
// word call, whose consumption depends on the callee) ends the scan with
// no finding.
func CheckOpsWithInitial(ops []lang.Op, depth int) error {
	for ip := range ops {
		op := &ops[ip]
		pops, pushes, known := op.Code.Effect()
		if !known {
			return nil
		}
		if depth < pops {
			return &CheckError{IP: ip, Op: *op, Needed: pops}
		}
		depth += pushes - pops
	}
	return nil
}
