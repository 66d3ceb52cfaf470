package vm

import "github.com/mstoykov/minijvm/pkg/classfile"

// Object is a heap-allocated instance: a pointer to its class plus a
// contiguous instance-field region, one 4-byte cell per slot, addressed by
// each field's Findex (§3).
type Object struct {
	Class  *classfile.ClassFile
	Fields []byte
}

// PrimitiveArray is a heap-allocated array: an element type tag, a length,
// and the backing bytes (length * elemSize(Atype)).
type PrimitiveArray struct {
	Atype  byte
	Length int
	Data   []byte
}

// Heap is a per-VM arena of objects and arrays addressed by opaque uint32
// handles rather than native pointers, so stack/local cells stay uniform
// 4-byte runs regardless of whether they hold a reference or an int (§9:
// "byte-granular operand stack"). Handle 0 is reserved for null. There is
// no garbage collector: entries live until the VM itself is discarded,
// matching §5's no-GC resource model.
type Heap struct {
	objects []*Object
	arrays  []*PrimitiveArray
}

// NewHeap creates an empty heap. Index 0 of both slices is a sentinel: it
// is never a valid allocation, so handle 0 can double as the null
// reference.
func NewHeap() *Heap {
	return &Heap{
		objects: []*Object{nil},
		arrays:  []*PrimitiveArray{nil},
	}
}

// NewObject allocates an instance of cf and returns its handle. Handles for
// objects and arrays are drawn from separate spaces; the caller (the `new`
// and `newarray` opcodes) always knows which kind it is holding, so there is
// no ambiguity at the call sites that dereference them.
func (h *Heap) NewObject(cf *classfile.ClassFile) uint32 {
	obj := &Object{Class: cf, Fields: make([]byte, cf.NumInstanceFields*SZ_INT)}
	h.objects = append(h.objects, obj)
	return uint32(len(h.objects) - 1)
}

func (h *Heap) Object(handle uint32) *Object {
	if handle == 0 || int(handle) >= len(h.objects) {
		return nil
	}
	return h.objects[handle]
}

// NewArray allocates a primitive array of the given element type and
// length, zero-filled.
func (h *Heap) NewArray(atype byte, length int) (uint32, error) {
	sz, err := elemSize(atype)
	if err != nil {
		return 0, err
	}
	arr := &PrimitiveArray{Atype: atype, Length: length, Data: make([]byte, length*sz)}
	h.arrays = append(h.arrays, arr)
	return uint32(len(h.arrays) - 1), nil
}

func (h *Heap) Array(handle uint32) *PrimitiveArray {
	if handle == 0 || int(handle) >= len(h.arrays) {
		return nil
	}
	return h.arrays[handle]
}
