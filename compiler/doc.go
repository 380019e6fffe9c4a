/*

Process of compilation

Checked declarations (ast) ->
	sched: TypeChecked -> SizeComputed ->
	gen: BytecodeBuilt ->
Frozen bytecode (ir.Proc) ->
	interp: Run ->
Run directive results, initialized globals

Every declaration is an entity going through the phases in order.
A handler that needs another declaration in a later phase yields,
and the scheduler retries it once the requirement is met.
Cycles of requirements are reported as errors.

*/
package compiler
