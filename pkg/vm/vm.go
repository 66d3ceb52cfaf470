package vm

import (
	"io"
	"os"

	"github.com/mstoykov/minijvm/pkg/classfile"
)

// VM is the engine's top-level, per-run state: the class registry, the
// object heap, the console a native print routes to, and the reentrancy
// guard <clinit> uses (§2, §3's "global state"). A VM is single-threaded and
// not meant to be reused across unrelated runs.
type VM struct {
	Registry *Registry
	Heap     *Heap
	Stdout   io.Writer

	clinitRunning map[*classfile.ClassFile]bool
}

// NewVM wires a VM to the given class loader. Stdout defaults to os.Stdout;
// tests substitute a bytes.Buffer via SetStdout.
func NewVM(loader ClassLoader) *VM {
	return &VM{
		Registry:      NewRegistry(loader),
		Heap:          NewHeap(),
		Stdout:        os.Stdout,
		clinitRunning: make(map[*classfile.ClassFile]bool),
	}
}

// SetStdout redirects the console a native's writeString/print routes
// to — used by tests to capture output instead of the process's own stdout.
func (vm *VM) SetStdout(w io.Writer) {
	vm.Stdout = w
}

// RunMainMethod implements §2 component 9 and §4.6: load className, run its <clinit> chain,
// then invoke its `public static void main(String[])` with a null argument
// (the array contents are never inspected by any test program this engine
// targets, so a null handle is sufficient rather than materializing argv).
func (vm *VM) RunMainMethod(className string) error {
	cf, err := vm.Registry.Load(className)
	if err != nil {
		return err
	}
	if err := vm.runClinit(cf); err != nil {
		return err
	}

	method := cf.FindMethod("main", "([Ljava/lang/String;)V")
	if method == nil || !method.IsStatic() {
		return errNoMainMethod(className)
	}

	args := make([]byte, SZ_REF)
	putRef(args, 0)
	_, err = vm.runMethod(cf, method, args, 0)
	return err
}
