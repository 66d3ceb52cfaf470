package vm

import "github.com/mstoykov/minijvm/pkg/classfile"

// runClinit implements §4.6: run the superclass chain's initializers
// first, then this class's own, and latch ClinitRan so a second call is a
// no-op (§8's idempotence property). clinitRunning guards against a class
// whose own <clinit> somehow re-triggers initialization of itself before
// the first run has unwound (§3 invariant (b)); such a reentrant call
// observes initialization as already underway and returns immediately
// without re-running it.
func (vm *VM) runClinit(cf *classfile.ClassFile) error {
	if cf.ClinitRan || vm.clinitRunning[cf] {
		return nil
	}
	vm.clinitRunning[cf] = true
	defer delete(vm.clinitRunning, cf)

	if cf.ParentClass != nil {
		if err := vm.runClinit(cf.ParentClass); err != nil {
			return err
		}
	}

	method := cf.FindMethod("<clinit>", "()V")
	if method != nil && method.Code != nil {
		if _, err := vm.runMethod(cf, method, nil, 0); err != nil {
			return err
		}
	}

	cf.ClinitRan = true
	return nil
}
