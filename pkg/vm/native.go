package vm

import "fmt"

// callNative implements the §4.7 allow-list. Resolution marks a native
// target (resolveStaticMethod sets mref.Native), so the caller never builds
// a frame for these — invokestatic calls this directly instead of recursing
// into the dispatch loop.
//
// Arguments arrive as the raw args_len byte block popped from the caller's
// stack, in declaration order; System.arraycopy's five parameters (two
// array handles, three ints) are therefore 20 bytes.
func (vm *VM) callNative(className, methodName string, args []byte) ([]byte, error) {
	switch {
	case className == "java/lang/System" && methodName == "arraycopy":
		return nil, vm.nativeArraycopy(args)
	case className == "test/IOUtil" && methodName == "writeString":
		return nil, vm.nativeWriteString(args)
	default:
		// Unknown natives resolve successfully but are a no-op (§4.7).
		return nil, nil
	}
}

// nativeArraycopy implements System.arraycopy(src, srcPos, dst, destPos,
// length). The descriptor order is src, srcPos, dst, destPos, length; args
// is already in that declaration order (see invokeStatic).
func (vm *VM) nativeArraycopy(args []byte) error {
	src := getRef(args[0:])
	srcPos := getInt(args[4:])
	dst := getRef(args[8:])
	destPos := getInt(args[12:])
	length := getInt(args[16:])

	srcArr := vm.Heap.Array(src)
	dstArr := vm.Heap.Array(dst)
	if srcArr == nil || dstArr == nil {
		return fmt.Errorf("arraycopy: nil array argument")
	}
	elemSz, err := elemSize(srcArr.Atype)
	if err != nil {
		return err
	}
	copy(
		dstArr.Data[int(destPos)*elemSz:(int(destPos)+int(length))*elemSz],
		srcArr.Data[int(srcPos)*elemSz:(int(srcPos)+int(length))*elemSz],
	)
	return nil
}

// nativeWriteString treats instance-field slot 0 of the receiver as a
// char[]-style array reference and prints its bytes followed by a newline
// (§4.7, §8's WriteStringNative scenario).
func (vm *VM) nativeWriteString(args []byte) error {
	receiver := getRef(args[0:])
	obj := vm.Heap.Object(receiver)
	if obj == nil {
		return fmt.Errorf("writeString: nil receiver")
	}
	arrHandle := getRef(obj.Fields[0:])
	arr := vm.Heap.Array(arrHandle)
	if arr == nil {
		return fmt.Errorf("writeString: field 0 is not an array reference")
	}
	if _, err := vm.Stdout.Write(arr.Data); err != nil {
		return err
	}
	_, err := vm.Stdout.Write([]byte{'\n'})
	return err
}
