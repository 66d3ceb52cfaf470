package vm

import (
	"fmt"

	"github.com/mstoykov/minijvm/pkg/classfile"
)

// Frame is a single method activation: a byte-addressed locals region and a
// byte-addressed operand stack with a growing-upward sp (§3 StackFrame).
// The spec's last_pc/last_class/prev-frame bookkeeping — restoring the
// caller's cursor on return — is provided here by Go's own call stack:
// runMethod recurses into the callee and the caller's Environment simply
// resumes in its stack frame once the callee returns, so there is nothing
// separate to save and restore.
type Frame struct {
	Locals []byte
	Stack  []byte
	SP     int

	Code  []byte
	PC    int
	Class *classfile.ClassFile
}

// NewFrame allocates a frame sized by the callee's Code attribute.
func NewFrame(code *classfile.CodeAttribute, class *classfile.ClassFile) *Frame {
	return &Frame{
		Locals: make([]byte, code.MaxLocals),
		Stack:  make([]byte, code.MaxStack),
		Code:   code.Code,
		Class:  class,
	}
}

func (f *Frame) PushInt(v int32) {
	f.ensureStack(SZ_INT)
	putInt(f.Stack[f.SP:], v)
	f.SP += SZ_INT
}

func (f *Frame) PopInt() int32 {
	f.SP -= SZ_INT
	if f.SP < 0 {
		panic("operand stack underflow")
	}
	return getInt(f.Stack[f.SP:])
}

func (f *Frame) PushRef(h uint32) {
	f.ensureStack(SZ_REF)
	putRef(f.Stack[f.SP:], h)
	f.SP += SZ_REF
}

func (f *Frame) PopRef() uint32 {
	f.SP -= SZ_REF
	if f.SP < 0 {
		panic("operand stack underflow")
	}
	return getRef(f.Stack[f.SP:])
}

func (f *Frame) ensureStack(n int) {
	if f.SP+n > len(f.Stack) {
		panic(fmt.Sprintf("operand stack overflow: sp=%d max_stack=%d", f.SP, len(f.Stack)))
	}
}

func (f *Frame) GetLocalInt(index int) int32 {
	return getInt(f.Locals[index*SZ_INT:])
}

func (f *Frame) SetLocalInt(index int, v int32) {
	putInt(f.Locals[index*SZ_INT:], v)
}

func (f *Frame) GetLocalRef(index int) uint32 {
	return getRef(f.Locals[index*SZ_REF:])
}

func (f *Frame) SetLocalRef(index int, h uint32) {
	putRef(f.Locals[index*SZ_REF:], h)
}

// ReadU8 reads a uint8 operand from the code stream and advances PC.
func (f *Frame) ReadU8() uint8 {
	v := f.Code[f.PC]
	f.PC++
	return v
}

// ReadI8 reads an int8 operand and advances PC.
func (f *Frame) ReadI8() int8 {
	return int8(f.ReadU8())
}

// ReadU16 reads a big-endian uint16 operand and advances PC by 2.
func (f *Frame) ReadU16() uint16 {
	v := uint16(f.Code[f.PC])<<8 | uint16(f.Code[f.PC+1])
	f.PC += 2
	return v
}

// ReadI16 reads a big-endian int16 operand and advances PC by 2.
func (f *Frame) ReadI16() int16 {
	return int16(f.ReadU16())
}
