package vm

import "github.com/mstoykov/minijvm/pkg/classfile"

// maxCallDepth bounds recursion the same way the teacher's VM bounds frame
// depth — a stack-overflow diagnostic instead of an unrecoverable Go
// runtime crash.
const maxCallDepth = 1024

// invokeStatic implements §4.5's static invocation path: resolve, transfer
// args_len bytes, run (or native-dispatch), push the return value.
func (vm *VM) invokeStatic(env *Environment, index uint16) error {
	pool := env.CurrentClass.ConstantPool
	mref, ok := pool[index].(*classfile.ConstantMethodref)
	if !ok {
		return errUnresolvedMethod("?", "?", "?")
	}
	method, owner, native, err := resolveStaticMethod(vm.Registry, pool, mref)
	if err != nil {
		return err
	}

	frame := env.CurrentFrame
	argsLen := method.ArgsLen
	args := make([]byte, argsLen)
	frame.SP -= argsLen
	copy(args, frame.Stack[frame.SP:frame.SP+argsLen])

	if native {
		className, _ := owner.Name()
		ret, err := vm.callNative(className, method.Name, args)
		if err != nil {
			return err
		}
		pushReturn(frame, method.Descriptor, ret)
		return nil
	}

	if err := vm.runClinit(owner); err != nil {
		return err
	}
	ret, err := vm.runMethod(owner, method, args, env.CallDepth+1)
	if err != nil {
		return err
	}
	pushReturn(frame, method.Descriptor, ret)
	return nil
}

// invokeSpecial implements §4.5's special invocation path: the argument
// block is args_len+SZ_REF with the receiver at the bottom, landing in
// locals slot 0.
func (vm *VM) invokeSpecial(env *Environment, index uint16) error {
	pool := env.CurrentClass.ConstantPool
	mref, ok := pool[index].(*classfile.ConstantMethodref)
	if !ok {
		return errUnresolvedMethod("?", "?", "?")
	}
	method, owner, err := resolveSpecialMethod(vm.Registry, pool, mref)
	if err != nil {
		return err
	}

	frame := env.CurrentFrame
	total := method.ArgsLen + SZ_REF
	args := make([]byte, total)
	frame.SP -= total
	copy(args, frame.Stack[frame.SP:frame.SP+total])

	ret, err := vm.runMethod(owner, method, args, env.CallDepth+1)
	if err != nil {
		return err
	}
	pushReturn(frame, method.Descriptor, ret)
	return nil
}

// invokeVirtual implements §4.3 mode 3 + §4.5: the call site's MethodTable
// is keyed on the receiver's *runtime* class, so the argument block's
// length must come from the symbolic descriptor (available without
// resolving), not from a cached method — the resolved method may differ
// per receiver class even though its descriptor cannot.
func (vm *VM) invokeVirtual(env *Environment, index uint16) error {
	pool := env.CurrentClass.ConstantPool
	mref, ok := pool[index].(*classfile.ConstantMethodref)
	if !ok {
		return errUnresolvedMethod("?", "?", "?")
	}
	_, descriptor, err := classfile.NameAndType(pool, mref.NameAndTypeIndex)
	if err != nil {
		return err
	}
	argsLen, err := classfile.DescriptorArgsLen(descriptor)
	if err != nil {
		return err
	}

	frame := env.CurrentFrame
	total := argsLen + SZ_REF
	args := make([]byte, total)
	frame.SP -= total
	copy(args, frame.Stack[frame.SP:frame.SP+total])

	receiverHandle := getRef(args[0:])
	obj := vm.Heap.Object(receiverHandle)
	if obj == nil {
		return errUnresolvedMethod("<null receiver>", "", descriptor)
	}

	entry, err := resolveVirtualMethod(pool, mref, obj.Class)
	if err != nil {
		return err
	}

	ret, err := vm.runMethod(entry.OwningClass, entry.Method, args, env.CallDepth+1)
	if err != nil {
		return err
	}
	pushReturn(frame, entry.Method.Descriptor, ret)
	return nil
}

func pushReturn(frame *Frame, descriptor string, ret []byte) {
	if classfile.ReturnKind(descriptor) == 'V' || ret == nil {
		return
	}
	frame.PushInt(getInt(ret))
}

// runMethod builds a fresh frame for method, copies args into its locals at
// offset 0, and runs the dispatch loop to completion, returning the bytes
// the method's return opcode pushed (nil for void) (§4.5).
func (vm *VM) runMethod(cf *classfile.ClassFile, method *classfile.MethodInfo, args []byte, callDepth int) ([]byte, error) {
	if callDepth > maxCallDepth {
		return nil, &VMError{Kind: UnresolvedMethod, Msg: "call depth exceeded (probable infinite recursion)"}
	}
	if method.Code == nil {
		return nil, nil
	}

	frame := NewFrame(method.Code, cf)
	copy(frame.Locals, args)

	hasReceiver := !method.IsStatic()
	env := &Environment{
		PC:            0,
		PCStart:       0,
		PCEnd:         len(frame.Code),
		CurrentClass:  cf,
		CurrentFrame:  frame,
		CurrentMethod: method,
		HasReceiver:   hasReceiver,
		IsClinit:      method.Name == "<clinit>",
		CallDepth:     callDepth,
	}
	if hasReceiver {
		env.CurrentReceiver = getRef(args[0:])
	}

	return vm.execute(env)
}
