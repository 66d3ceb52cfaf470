package vm

import (
	"fmt"

	"github.com/mstoykov/minijvm/pkg/classfile"
)

// opcodeHandler executes one instruction. It returns (retBytes, true, nil)
// when the instruction is a return variant that ends the current frame;
// otherwise it returns (nil, false, err).
type opcodeHandler func(vm *VM, env *Environment) ([]byte, bool, error)

// opcodeTable is the fixed 256-entry dispatch table (§4.8, §2 component 6).
// Entries left nil fall through to errUnknownOpcode in execute.
var opcodeTable [256]opcodeHandler

func init() {
	opcodeTable[0x00] = opNop
	opcodeTable[0x01] = opAconstNull

	opcodeTable[0x02] = opIconst(-1)
	opcodeTable[0x03] = opIconst(0)
	opcodeTable[0x04] = opIconst(1)
	opcodeTable[0x05] = opIconst(2)
	opcodeTable[0x06] = opIconst(3)
	opcodeTable[0x07] = opIconst(4)
	opcodeTable[0x08] = opIconst(5)

	opcodeTable[0x10] = opBipush
	opcodeTable[0x11] = opSipush
	opcodeTable[0x12] = opLdc

	opcodeTable[0x15] = opIload
	opcodeTable[0x19] = opAload
	opcodeTable[0x1a] = opIloadN(0)
	opcodeTable[0x1b] = opIloadN(1)
	opcodeTable[0x1c] = opIloadN(2)
	opcodeTable[0x1d] = opIloadN(3)
	opcodeTable[0x2a] = opAloadN(0)
	opcodeTable[0x2b] = opAloadN(1)
	opcodeTable[0x2c] = opAloadN(2)
	opcodeTable[0x2d] = opAloadN(3)

	opcodeTable[0x36] = opIstore
	opcodeTable[0x3a] = opAstore
	opcodeTable[0x3b] = opIstoreN(0)
	opcodeTable[0x3c] = opIstoreN(1)
	opcodeTable[0x3d] = opIstoreN(2)
	opcodeTable[0x3e] = opIstoreN(3)
	opcodeTable[0x4b] = opAstoreN(0)
	opcodeTable[0x4c] = opAstoreN(1)
	opcodeTable[0x4d] = opAstoreN(2)
	opcodeTable[0x4e] = opAstoreN(3)

	opcodeTable[0x2e] = opIaload
	opcodeTable[0x4f] = opIastore
	opcodeTable[0x33] = opBaload
	opcodeTable[0x54] = opBastore
	opcodeTable[0x34] = opBaload // caload: this engine's char[] is byte-wide (§4.1 expansion)
	opcodeTable[0x55] = opBastore

	opcodeTable[0x57] = opPop
	opcodeTable[0x58] = opPop2
	opcodeTable[0x59] = opDup
	opcodeTable[0x5a] = opDupX1
	opcodeTable[0x5f] = opSwap

	opcodeTable[0x60] = opIadd
	opcodeTable[0x64] = opIsub
	opcodeTable[0x68] = opImul
	opcodeTable[0x6c] = opIdiv
	opcodeTable[0x70] = opIrem
	opcodeTable[0x74] = opIneg
	opcodeTable[0x78] = opIshl
	opcodeTable[0x7a] = opIshr
	opcodeTable[0x7c] = opIushr
	opcodeTable[0x7e] = opIand
	opcodeTable[0x80] = opIor
	opcodeTable[0x82] = opIxor
	opcodeTable[0x84] = opIinc

	opcodeTable[0x99] = opIf(func(v int32) bool { return v == 0 })
	opcodeTable[0x9a] = opIf(func(v int32) bool { return v != 0 })
	opcodeTable[0x9b] = opIf(func(v int32) bool { return v < 0 })
	opcodeTable[0x9c] = opIf(func(v int32) bool { return v >= 0 })
	opcodeTable[0x9d] = opIf(func(v int32) bool { return v > 0 })
	opcodeTable[0x9e] = opIf(func(v int32) bool { return v <= 0 })

	opcodeTable[0x9f] = opIfICmp(func(a, b int32) bool { return a == b })
	opcodeTable[0xa0] = opIfICmp(func(a, b int32) bool { return a != b })
	opcodeTable[0xa1] = opIfICmp(func(a, b int32) bool { return a < b })
	opcodeTable[0xa2] = opIfICmp(func(a, b int32) bool { return a >= b })
	opcodeTable[0xa3] = opIfICmp(func(a, b int32) bool { return a > b })
	opcodeTable[0xa4] = opIfICmp(func(a, b int32) bool { return a <= b })

	opcodeTable[0xa5] = opIfACmp(func(a, b uint32) bool { return a == b })
	opcodeTable[0xa6] = opIfACmp(func(a, b uint32) bool { return a != b })
	opcodeTable[0xc6] = opIfNull(true)
	opcodeTable[0xc7] = opIfNull(false)

	opcodeTable[0xa7] = opGoto

	opcodeTable[0xb2] = opGetstatic
	opcodeTable[0xb3] = opPutstatic
	opcodeTable[0xb4] = opGetfield
	opcodeTable[0xb5] = opPutfield

	opcodeTable[0xb6] = opInvokevirtual
	opcodeTable[0xb7] = opInvokespecial
	opcodeTable[0xb8] = opInvokestatic

	opcodeTable[0xbb] = opNew
	opcodeTable[0xbc] = opNewarray
	opcodeTable[0xbe] = opArraylength

	opcodeTable[0xb1] = opReturn
	opcodeTable[0xac] = opIreturn
	opcodeTable[0xb0] = opAreturn
}

// execute is the interpreter loop: fetch, decode, dispatch, repeat until a
// return opcode unwinds the frame or PC exhausts the code range — the two
// cases §4.6/§4.8 describe as separate dispatch-loop variants collapse into
// one here because every method (including <clinit>) is run by a recursive
// call to this same loop.
func (vm *VM) execute(env *Environment) ([]byte, error) {
	frame := env.CurrentFrame
	for frame.PC < env.PCEnd {
		instrPC := frame.PC
		opcode := frame.Code[frame.PC]
		frame.PC++
		env.PC = frame.PC

		handler := opcodeTable[opcode]
		if handler == nil {
			className, _ := env.CurrentClass.Name()
			return nil, errUnknownOpcode(className, opcode, instrPC)
		}

		ret, done, err := handler(vm, env)
		if err != nil {
			className, _ := env.CurrentClass.Name()
			return nil, fmt.Errorf("in %s.%s:%s at pc=%d: %w", className, env.CurrentMethod.Name, env.CurrentMethod.Descriptor, instrPC, err)
		}
		if done {
			return ret, nil
		}
		env.PC = frame.PC
	}
	return nil, nil
}

func opNop(vm *VM, env *Environment) ([]byte, bool, error) { return nil, false, nil }

func opAconstNull(vm *VM, env *Environment) ([]byte, bool, error) {
	env.CurrentFrame.PushRef(0)
	return nil, false, nil
}

func opIconst(v int32) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		env.CurrentFrame.PushInt(v)
		return nil, false, nil
	}
}

func opBipush(vm *VM, env *Environment) ([]byte, bool, error) {
	env.CurrentFrame.PushInt(int32(env.CurrentFrame.ReadI8()))
	return nil, false, nil
}

func opSipush(vm *VM, env *Environment) ([]byte, bool, error) {
	env.CurrentFrame.PushInt(int32(env.CurrentFrame.ReadI16()))
	return nil, false, nil
}

// opLdc loads an int or string constant. A string constant materializes a
// fresh heap-backed byte array from its UTF-8 bytes — this engine has no
// distinct String type (§4.1 expansion).
func opLdc(vm *VM, env *Environment) ([]byte, bool, error) {
	frame := env.CurrentFrame
	index := uint16(frame.ReadU8())
	pool := env.CurrentClass.ConstantPool
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, false, fmt.Errorf("ldc: invalid constant pool index %d", index)
	}
	switch c := pool[index].(type) {
	case *classfile.ConstantInteger:
		frame.PushInt(c.Value)
	case *classfile.ConstantString:
		s, err := classfile.GetUtf8(pool, c.StringIndex)
		if err != nil {
			return nil, false, err
		}
		handle, err := vm.Heap.NewArray(AtypeByte, len(s))
		if err != nil {
			return nil, false, err
		}
		copy(vm.Heap.Array(handle).Data, s)
		frame.PushRef(handle)
	default:
		return nil, false, fmt.Errorf("ldc: unsupported constant pool entry (tag=%d)", pool[index].Tag())
	}
	return nil, false, nil
}

func opIload(vm *VM, env *Environment) ([]byte, bool, error) {
	idx := int(env.CurrentFrame.ReadU8())
	env.CurrentFrame.PushInt(env.CurrentFrame.GetLocalInt(idx))
	return nil, false, nil
}

func opIloadN(idx int) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		env.CurrentFrame.PushInt(env.CurrentFrame.GetLocalInt(idx))
		return nil, false, nil
	}
}

func opAload(vm *VM, env *Environment) ([]byte, bool, error) {
	idx := int(env.CurrentFrame.ReadU8())
	env.CurrentFrame.PushRef(env.CurrentFrame.GetLocalRef(idx))
	return nil, false, nil
}

func opAloadN(idx int) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		env.CurrentFrame.PushRef(env.CurrentFrame.GetLocalRef(idx))
		return nil, false, nil
	}
}

func opIstore(vm *VM, env *Environment) ([]byte, bool, error) {
	idx := int(env.CurrentFrame.ReadU8())
	env.CurrentFrame.SetLocalInt(idx, env.CurrentFrame.PopInt())
	return nil, false, nil
}

func opIstoreN(idx int) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		env.CurrentFrame.SetLocalInt(idx, env.CurrentFrame.PopInt())
		return nil, false, nil
	}
}

func opAstore(vm *VM, env *Environment) ([]byte, bool, error) {
	idx := int(env.CurrentFrame.ReadU8())
	env.CurrentFrame.SetLocalRef(idx, env.CurrentFrame.PopRef())
	return nil, false, nil
}

func opAstoreN(idx int) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		env.CurrentFrame.SetLocalRef(idx, env.CurrentFrame.PopRef())
		return nil, false, nil
	}
}

func opIinc(vm *VM, env *Environment) ([]byte, bool, error) {
	idx := int(env.CurrentFrame.ReadU8())
	delta := int32(env.CurrentFrame.ReadI8())
	env.CurrentFrame.SetLocalInt(idx, env.CurrentFrame.GetLocalInt(idx)+delta)
	return nil, false, nil
}

func opPop(vm *VM, env *Environment) ([]byte, bool, error) {
	env.CurrentFrame.PopInt()
	return nil, false, nil
}

func opPop2(vm *VM, env *Environment) ([]byte, bool, error) {
	env.CurrentFrame.PopInt()
	env.CurrentFrame.PopInt()
	return nil, false, nil
}

func opDup(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	top := f.Stack[f.SP-SZ_INT : f.SP]
	f.ensureStack(SZ_INT)
	copy(f.Stack[f.SP:], top)
	f.SP += SZ_INT
	return nil, false, nil
}

func opDupX1(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	var top, second [SZ_INT]byte
	copy(top[:], f.Stack[f.SP-SZ_INT:f.SP])
	copy(second[:], f.Stack[f.SP-2*SZ_INT:f.SP-SZ_INT])
	f.ensureStack(SZ_INT)
	copy(f.Stack[f.SP-2*SZ_INT:], top[:])
	copy(f.Stack[f.SP-SZ_INT:], second[:])
	copy(f.Stack[f.SP:], top[:])
	f.SP += SZ_INT
	return nil, false, nil
}

func opSwap(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	var a, b [SZ_INT]byte
	copy(a[:], f.Stack[f.SP-2*SZ_INT:f.SP-SZ_INT])
	copy(b[:], f.Stack[f.SP-SZ_INT:f.SP])
	copy(f.Stack[f.SP-2*SZ_INT:], b[:])
	copy(f.Stack[f.SP-SZ_INT:], a[:])
	return nil, false, nil
}

func binIntOp(op func(a, b int32) int32) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		f := env.CurrentFrame
		b := f.PopInt()
		a := f.PopInt()
		f.PushInt(op(a, b))
		return nil, false, nil
	}
}

var opIadd = binIntOp(func(a, b int32) int32 { return a + b })
var opIsub = binIntOp(func(a, b int32) int32 { return a - b })
var opImul = binIntOp(func(a, b int32) int32 { return a * b })
var opIand = binIntOp(func(a, b int32) int32 { return a & b })
var opIor = binIntOp(func(a, b int32) int32 { return a | b })
var opIxor = binIntOp(func(a, b int32) int32 { return a ^ b })
var opIshl = binIntOp(func(a, b int32) int32 { return a << (uint32(b) & 0x1f) })
var opIshr = binIntOp(func(a, b int32) int32 { return a >> (uint32(b) & 0x1f) })
var opIushr = binIntOp(func(a, b int32) int32 { return int32(uint32(a) >> (uint32(b) & 0x1f)) })

func opIdiv(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	b := f.PopInt()
	a := f.PopInt()
	if b == 0 {
		return nil, false, fmt.Errorf("division by zero")
	}
	f.PushInt(a / b)
	return nil, false, nil
}

func opIrem(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	b := f.PopInt()
	a := f.PopInt()
	if b == 0 {
		return nil, false, fmt.Errorf("division by zero")
	}
	f.PushInt(a % b)
	return nil, false, nil
}

func opIneg(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	f.PushInt(-f.PopInt())
	return nil, false, nil
}

// branchTo rewrites PC relative to the frame's own code base (pc_start is
// always 0 in this engine: each method owns a private Code slice rather
// than sharing a class-wide code segment).
func branchTo(env *Environment, offset int16, fromPC int) {
	env.CurrentFrame.PC = fromPC + int(offset)
}

func opIf(pred func(int32) bool) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		f := env.CurrentFrame
		fromPC := f.PC - 1
		offset := f.ReadI16()
		v := f.PopInt()
		if pred(v) {
			branchTo(env, offset, fromPC)
		}
		return nil, false, nil
	}
}

func opIfICmp(pred func(a, b int32) bool) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		f := env.CurrentFrame
		fromPC := f.PC - 1
		offset := f.ReadI16()
		b := f.PopInt()
		a := f.PopInt()
		if pred(a, b) {
			branchTo(env, offset, fromPC)
		}
		return nil, false, nil
	}
}

func opIfACmp(pred func(a, b uint32) bool) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		f := env.CurrentFrame
		fromPC := f.PC - 1
		offset := f.ReadI16()
		b := f.PopRef()
		a := f.PopRef()
		if pred(a, b) {
			branchTo(env, offset, fromPC)
		}
		return nil, false, nil
	}
}

func opIfNull(wantNull bool) opcodeHandler {
	return func(vm *VM, env *Environment) ([]byte, bool, error) {
		f := env.CurrentFrame
		fromPC := f.PC - 1
		offset := f.ReadI16()
		r := f.PopRef()
		if (r == 0) == wantNull {
			branchTo(env, offset, fromPC)
		}
		return nil, false, nil
	}
}

func opGoto(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	fromPC := f.PC - 1
	offset := f.ReadI16()
	branchTo(env, offset, fromPC)
	return nil, false, nil
}

func opGetstatic(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	index := f.ReadU16()
	pool := env.CurrentClass.ConstantPool
	fref, ok := pool[index].(*classfile.ConstantFieldref)
	if !ok {
		return nil, false, fmt.Errorf("getstatic: constant pool index %d is not Fieldref", index)
	}
	if err := resolveStaticField(vm.Registry, pool, fref); err != nil {
		return nil, false, err
	}
	owner, err := resolveClassRef(vm.Registry, pool, fref.ClassIndex)
	if err != nil {
		return nil, false, err
	}
	if err := vm.runClinit(owner); err != nil {
		return nil, false, err
	}
	cell := owner.StaticFields[fref.Findex*SZ_INT:]
	if fref.Ftype == classfile.FtRef {
		f.PushRef(getRef(cell))
	} else {
		f.PushInt(getInt(cell))
	}
	return nil, false, nil
}

func opPutstatic(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	index := f.ReadU16()
	pool := env.CurrentClass.ConstantPool
	fref, ok := pool[index].(*classfile.ConstantFieldref)
	if !ok {
		return nil, false, fmt.Errorf("putstatic: constant pool index %d is not Fieldref", index)
	}
	if err := resolveStaticField(vm.Registry, pool, fref); err != nil {
		return nil, false, err
	}
	owner, err := resolveClassRef(vm.Registry, pool, fref.ClassIndex)
	if err != nil {
		return nil, false, err
	}
	if err := vm.runClinit(owner); err != nil {
		return nil, false, err
	}
	cell := owner.StaticFields[fref.Findex*SZ_INT:]
	if fref.Ftype == classfile.FtRef {
		putRef(cell, f.PopRef())
	} else {
		putInt(cell, f.PopInt())
	}
	return nil, false, nil
}

func opGetfield(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	index := f.ReadU16()
	pool := env.CurrentClass.ConstantPool
	fref, ok := pool[index].(*classfile.ConstantFieldref)
	if !ok {
		return nil, false, fmt.Errorf("getfield: constant pool index %d is not Fieldref", index)
	}
	if err := resolveInstanceField(vm.Registry, pool, fref); err != nil {
		return nil, false, err
	}
	handle := f.PopRef()
	obj := vm.Heap.Object(handle)
	if obj == nil {
		return nil, false, fmt.Errorf("getfield: null receiver")
	}
	cell := obj.Fields[fref.Findex*SZ_INT:]
	if fref.Ftype == classfile.FtRef {
		f.PushRef(getRef(cell))
	} else {
		f.PushInt(getInt(cell))
	}
	return nil, false, nil
}

func opPutfield(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	index := f.ReadU16()
	pool := env.CurrentClass.ConstantPool
	fref, ok := pool[index].(*classfile.ConstantFieldref)
	if !ok {
		return nil, false, fmt.Errorf("putfield: constant pool index %d is not Fieldref", index)
	}
	if err := resolveInstanceField(vm.Registry, pool, fref); err != nil {
		return nil, false, err
	}
	var valInt int32
	var valRef uint32
	if fref.Ftype == classfile.FtRef {
		valRef = f.PopRef()
	} else {
		valInt = f.PopInt()
	}
	handle := f.PopRef()
	obj := vm.Heap.Object(handle)
	if obj == nil {
		return nil, false, fmt.Errorf("putfield: null receiver")
	}
	cell := obj.Fields[fref.Findex*SZ_INT:]
	if fref.Ftype == classfile.FtRef {
		putRef(cell, valRef)
	} else {
		putInt(cell, valInt)
	}
	return nil, false, nil
}

func opInvokevirtual(vm *VM, env *Environment) ([]byte, bool, error) {
	index := env.CurrentFrame.ReadU16()
	return nil, false, vm.invokeVirtual(env, index)
}

func opInvokespecial(vm *VM, env *Environment) ([]byte, bool, error) {
	index := env.CurrentFrame.ReadU16()
	return nil, false, vm.invokeSpecial(env, index)
}

func opInvokestatic(vm *VM, env *Environment) ([]byte, bool, error) {
	index := env.CurrentFrame.ReadU16()
	return nil, false, vm.invokeStatic(env, index)
}

func opNew(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	index := f.ReadU16()
	pool := env.CurrentClass.ConstantPool
	cf, err := resolveClassRef(vm.Registry, pool, index)
	if err != nil {
		return nil, false, err
	}
	if err := vm.runClinit(cf); err != nil {
		return nil, false, err
	}
	f.PushRef(vm.Heap.NewObject(cf))
	return nil, false, nil
}

func opNewarray(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	atype := f.ReadU8()
	length := f.PopInt()
	handle, err := vm.Heap.NewArray(atype, int(length))
	if err != nil {
		return nil, false, err
	}
	f.PushRef(handle)
	return nil, false, nil
}

func opArraylength(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	handle := f.PopRef()
	arr := vm.Heap.Array(handle)
	if arr == nil {
		return nil, false, fmt.Errorf("arraylength: null array")
	}
	f.PushInt(int32(arr.Length))
	return nil, false, nil
}

func opIaload(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	idx := f.PopInt()
	handle := f.PopRef()
	arr := vm.Heap.Array(handle)
	if arr == nil {
		return nil, false, fmt.Errorf("iaload: null array")
	}
	f.PushInt(getInt(arr.Data[int(idx)*4:]))
	return nil, false, nil
}

func opIastore(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	v := f.PopInt()
	idx := f.PopInt()
	handle := f.PopRef()
	arr := vm.Heap.Array(handle)
	if arr == nil {
		return nil, false, fmt.Errorf("iastore: null array")
	}
	putInt(arr.Data[int(idx)*4:], v)
	return nil, false, nil
}

func opBaload(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	idx := f.PopInt()
	handle := f.PopRef()
	arr := vm.Heap.Array(handle)
	if arr == nil {
		return nil, false, fmt.Errorf("baload: null array")
	}
	f.PushInt(int32(int8(arr.Data[idx])))
	return nil, false, nil
}

func opBastore(vm *VM, env *Environment) ([]byte, bool, error) {
	f := env.CurrentFrame
	v := f.PopInt()
	idx := f.PopInt()
	handle := f.PopRef()
	arr := vm.Heap.Array(handle)
	if arr == nil {
		return nil, false, fmt.Errorf("bastore: null array")
	}
	arr.Data[idx] = byte(v)
	return nil, false, nil
}

func opReturn(vm *VM, env *Environment) ([]byte, bool, error) {
	return nil, true, nil
}

func opIreturn(vm *VM, env *Environment) ([]byte, bool, error) {
	v := env.CurrentFrame.PopInt()
	ret := make([]byte, SZ_INT)
	putInt(ret, v)
	return ret, true, nil
}

func opAreturn(vm *VM, env *Environment) ([]byte, bool, error) {
	v := env.CurrentFrame.PopRef()
	ret := make([]byte, SZ_REF)
	putRef(ret, v)
	return ret, true, nil
}
