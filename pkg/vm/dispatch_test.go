package vm

import (
	"io"
	"testing"

	"github.com/mstoykov/minijvm/pkg/classfile"
)

// newTestVM builds a VM with no registered classes, suitable for exercising
// opcode handlers that never touch the registry (everything except
// invoke*/getstatic/putstatic/getfield/putfield/new).
func newTestVM() *VM {
	return &VM{Heap: NewHeap(), Stdout: io.Discard, clinitRunning: map[*classfile.ClassFile]bool{}}
}

// execInt runs code to completion against a throwaway class with the given
// constant pool and locals, and returns the int value an ireturn pushed.
func execInt(t *testing.T, code []byte, pool []classfile.ConstantPoolEntry, locals ...int32) int32 {
	t.Helper()
	cf := &classfile.ClassFile{ConstantPool: pool}
	frame := NewFrame(&classfile.CodeAttribute{MaxStack: 16, MaxLocals: 16, Code: code}, cf)
	for i, l := range locals {
		frame.SetLocalInt(i, l)
	}
	env := &Environment{
		PCEnd:         len(code),
		CurrentClass:  cf,
		CurrentFrame:  frame,
		CurrentMethod: &classfile.MethodInfo{Name: "test", Descriptor: "()I"},
	}
	ret, err := newTestVM().execute(env)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if ret == nil {
		t.Fatal("bytecode did not return a value")
	}
	return getInt(ret)
}

func TestIconst(t *testing.T) {
	tests := []struct {
		name   string
		opcode byte
		want   int32
	}{
		{"iconst_m1", 0x02, -1},
		{"iconst_0", 0x03, 0},
		{"iconst_1", 0x04, 1},
		{"iconst_2", 0x05, 2},
		{"iconst_3", 0x06, 3},
		{"iconst_4", 0x07, 4},
		{"iconst_5", 0x08, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := execInt(t, []byte{tt.opcode, 0xAC}, nil)
			if got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestBipushSipush(t *testing.T) {
	if got := execInt(t, []byte{0x10, 0x7F, 0xAC}, nil); got != 127 {
		t.Errorf("bipush 127: got %d, want 127", got)
	}
	if got := execInt(t, []byte{0x10, 0x80, 0xAC}, nil); got != -128 {
		t.Errorf("bipush -128: got %d, want -128", got)
	}
	if got := execInt(t, []byte{0x11, 0x01, 0x00, 0xAC}, nil); got != 256 {
		t.Errorf("sipush 256: got %d, want 256", got)
	}
}

func TestArithmeticInstructions(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		{"iadd: 3+4=7", []byte{0x06, 0x07, 0x60, 0xAC}, 7},
		{"isub: 5-3=2", []byte{0x08, 0x06, 0x64, 0xAC}, 2},
		{"imul: 3*4=12", []byte{0x06, 0x07, 0x68, 0xAC}, 12},
		{"idiv: 5/2=2", []byte{0x08, 0x05, 0x6C, 0xAC}, 2},
		{"irem: 5%3=2", []byte{0x08, 0x06, 0x70, 0xAC}, 2},
		{"ineg: -(5)=-5", []byte{0x08, 0x74, 0xAC}, -5},
		{"compound: (2+3)*4=20", []byte{0x05, 0x06, 0x60, 0x07, 0x68, 0xAC}, 20},
		{"iand: 6&3=2", []byte{0x10, 0x06, 0x10, 0x03, 0x7E, 0xAC}, 2},
		{"ior: 4|1=5", []byte{0x07, 0x04, 0x80, 0xAC}, 5},
		{"ishl: 1<<3=8", []byte{0x04, 0x06, 0x78, 0xAC}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := execInt(t, tt.code, nil)
			if got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	cf := &classfile.ClassFile{}
	code := []byte{0x08, 0x03, 0x6C, 0xAC} // iconst_5, iconst_0, idiv, ireturn
	frame := NewFrame(&classfile.CodeAttribute{MaxStack: 8, MaxLocals: 4, Code: code}, cf)
	env := &Environment{PCEnd: len(code), CurrentClass: cf, CurrentFrame: frame, CurrentMethod: &classfile.MethodInfo{Name: "t", Descriptor: "()I"}}

	_, err := newTestVM().execute(env)
	if err == nil {
		t.Fatal("expected division-by-zero error, got nil")
	}
}

func TestBranchOpcodes(t *testing.T) {
	t.Run("ifeq taken", func(t *testing.T) {
		// iconst_0, ifeq(+5 -> pc 6), iconst_1, ireturn, iconst_2, ireturn
		code := []byte{0x03, 0x99, 0x00, 0x05, 0x04, 0xAC, 0x05, 0xAC}
		if got := execInt(t, code, nil); got != 2 {
			t.Errorf("ifeq taken: got %d, want 2", got)
		}
	})

	t.Run("ifeq not taken", func(t *testing.T) {
		code := []byte{0x04, 0x99, 0x00, 0x05, 0x06, 0xAC, 0x07, 0xAC}
		if got := execInt(t, code, nil); got != 3 {
			t.Errorf("ifeq not taken: got %d, want 3", got)
		}
	})

	t.Run("goto unconditional", func(t *testing.T) {
		code := []byte{0xA7, 0x00, 0x05, 0x04, 0xAC, 0x05, 0xAC}
		if got := execInt(t, code, nil); got != 2 {
			t.Errorf("goto: got %d, want 2", got)
		}
	})

	t.Run("if_icmplt taken", func(t *testing.T) {
		// iload_0, iload_1, if_icmplt(+5), iconst_0, ireturn, iconst_1, ireturn
		code := []byte{0x1a, 0x1b, 0xa1, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC}
		if got := execInt(t, code, nil, 3, 5); got != 1 {
			t.Errorf("if_icmplt 3<5: got %d, want 1", got)
		}
	})
}

func TestStackOps(t *testing.T) {
	t.Run("dup", func(t *testing.T) {
		code := []byte{0x06, 0x59, 0x60, 0xAC} // iconst_3, dup, iadd, ireturn
		if got := execInt(t, code, nil); got != 6 {
			t.Errorf("dup+iadd: got %d, want 6", got)
		}
	})
	t.Run("pop", func(t *testing.T) {
		code := []byte{0x06, 0x07, 0x57, 0xAC} // iconst_3, iconst_4, pop, ireturn
		if got := execInt(t, code, nil); got != 3 {
			t.Errorf("pop: got %d, want 3", got)
		}
	})
	t.Run("swap", func(t *testing.T) {
		code := []byte{0x08, 0x05, 0x5F, 0x64, 0xAC} // iconst_5, iconst_2, swap, isub, ireturn -> 2-5
		if got := execInt(t, code, nil); got != -3 {
			t.Errorf("swap+isub: got %d, want -3", got)
		}
	})
}

func TestIinc(t *testing.T) {
	// iload_0, iinc 0 5, iload_0, ireturn
	code := []byte{0x1a, 0x84, 0x00, 0x05, 0x1a, 0xAC}
	if got := execInt(t, code, nil, 10); got != 15 {
		t.Errorf("iinc: got %d, want 15", got)
	}
}

func TestLocalVarInstructions(t *testing.T) {
	t.Run("istore/iload", func(t *testing.T) {
		code := []byte{0x08, 0x3b, 0x1a, 0xAC} // iconst_5, istore_0, iload_0, ireturn
		if got := execInt(t, code, nil); got != 5 {
			t.Errorf("istore_0/iload_0: got %d, want 5", got)
		}
	})
	t.Run("istore/iload indexed", func(t *testing.T) {
		code := []byte{0x10, 0x2a, 0x36, 0x02, 0x15, 0x02, 0xAC} // bipush 42, istore 2, iload 2, ireturn
		if got := execInt(t, code, nil); got != 42 {
			t.Errorf("istore/iload #2: got %d, want 42", got)
		}
	})
}

func TestUnknownOpcode(t *testing.T) {
	cf := &classfile.ClassFile{}
	code := []byte{0xFF}
	frame := NewFrame(&classfile.CodeAttribute{MaxStack: 4, MaxLocals: 0, Code: code}, cf)
	env := &Environment{PCEnd: len(code), CurrentClass: cf, CurrentFrame: frame, CurrentMethod: &classfile.MethodInfo{Name: "t", Descriptor: "()V"}}

	_, err := newTestVM().execute(env)
	if err == nil {
		t.Fatal("expected UnknownOpcode error, got nil")
	}
}
