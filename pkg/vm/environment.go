package vm

import "github.com/mstoykov/minijvm/pkg/classfile"

// Environment is the engine's live cursor: which code is running, in which
// class, inside which frame, on behalf of which receiver (§3).
type Environment struct {
	PC      int
	PCStart int
	PCEnd   int

	CurrentClass    *classfile.ClassFile
	CurrentFrame    *Frame
	CurrentMethod   *classfile.MethodInfo
	HasReceiver     bool
	CurrentReceiver uint32

	IsClinit  bool
	CallDepth int
}
