package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// Field type tags, assigned from the field's descriptor at parse time.
// There is no GC and no distinct array-element typing here — Ftype only
// distinguishes the two physical cell encodings a 4-byte slot can hold.
const (
	FtInt byte = 'I' // any primitive: B, C, F, I, S, Z (J/D unsupported, see below)
	FtRef byte = 'R' // object/array reference, stored as a heap handle
)

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile
// with every field assigned a slot index and every method its args_len,
// ready for the engine to register and link.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}
	for _, f := range cf.Fields {
		if f.IsStatic() {
			f.Findex = cf.NumStaticFields
			cf.NumStaticFields++
		} else {
			f.Findex = cf.NumInstanceFields
			cf.NumInstanceFields++
		}
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	// Class-level attributes carry nothing the engine consumes; read and
	// discard them so the stream ends up correctly positioned.
	if err := skipAttributeTable(r); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return cf, nil
}

func parseFields(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]*FieldInfo, error) {
	fields := make([]*FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, fmt.Errorf("reading field %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading field %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, fmt.Errorf("reading field %d descriptor index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, fmt.Errorf("reading field %d attributes count: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d descriptor: %w", i, err)
		}
		if err := skipAttributes(r, attrCount); err != nil {
			return nil, fmt.Errorf("parsing field %d attributes: %w", i, err)
		}

		fields[i] = &FieldInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  desc,
			Ftype:       fieldType(desc),
		}
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]*MethodInfo, error) {
	methods := make([]*MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, fmt.Errorf("reading method %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading method %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, fmt.Errorf("reading method %d descriptor index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, fmt.Errorf("reading method %d attributes count: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d descriptor: %w", i, err)
		}

		argsLen, err := DescriptorArgsLen(desc)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", name, desc, err)
		}

		m := &MethodInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  desc,
			ArgsLen:     argsLen,
		}

		for a := uint16(0); a < attrCount; a++ {
			var attrNameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &attrNameIndex); err != nil {
				return nil, fmt.Errorf("reading method %d attribute %d name index: %w", i, a, err)
			}
			var length uint32
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading method %d attribute %d length: %w", i, a, err)
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("reading method %d attribute %d data: %w", i, a, err)
			}
			attrName, err := GetUtf8(pool, attrNameIndex)
			if err != nil {
				continue
			}
			if attrName == "Code" {
				code, err := parseCodeAttribute(data)
				if err != nil {
					return nil, fmt.Errorf("parsing Code attribute for method %s: %w", name, err)
				}
				m.Code = code
			}
		}

		methods[i] = m
	}
	return methods, nil
}

func skipAttributes(r io.Reader, count uint16) error {
	for i := uint16(0); i < count; i++ {
		if err := skipBytes(r, 2); err != nil { // name index
			return err
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return err
		}
		if err := skipBytes(r, int(length)); err != nil {
			return err
		}
	}
	return nil
}

func skipAttributeTable(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	return skipAttributes(r, count)
}

func parseCodeAttribute(data []byte) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}

	// The class file counts max_stack/max_locals in slots; the engine sizes
	// its byte-addressed frames from them, so both are stored in bytes (one
	// 4-byte cell per slot).
	maxStack := binary.BigEndian.Uint16(data[0:2]) * 4
	maxLocals := binary.BigEndian.Uint16(data[2:4]) * 4
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	return &CodeAttribute{
		MaxStack:   maxStack,
		MaxLocals:  maxLocals,
		CodeLength: codeLength,
		Code:       code,
	}, nil
}

// fieldType classifies a field descriptor as primitive or reference.
func fieldType(descriptor string) byte {
	if len(descriptor) == 0 {
		return FtInt
	}
	switch descriptor[0] {
	case 'L', '[':
		return FtRef
	default:
		return FtInt
	}
}

// ReturnKind classifies a method descriptor's return type: 'V' (void, no
// value pushed by return), 'R' (reference, areturn), or 'I' (everything
// else, ireturn).
func ReturnKind(descriptor string) byte {
	i := 0
	for i < len(descriptor) && descriptor[i] != ')' {
		i++
	}
	i++ // skip ')'
	if i >= len(descriptor) {
		return 'V'
	}
	switch descriptor[i] {
	case 'V':
		return 'V'
	case 'L', '[':
		return 'R'
	default:
		return 'I'
	}
}

// DescriptorArgsLen computes the byte length of a method's argument list
// (excluding the receiver) from its descriptor, per the invocation
// protocol's single-memcpy contract. long/double parameters occupy two
// cells structurally; the dispatch loop refuses to operate on them as
// operands (two-slot values are unsupported, see SPEC_FULL.md). Exported so
// the resolver can compute a call site's argument size directly from a
// symbolic descriptor, without first resolving the target method.
func DescriptorArgsLen(descriptor string) (int, error) {
	if len(descriptor) == 0 || descriptor[0] != '(' {
		return 0, fmt.Errorf("malformed descriptor %q", descriptor)
	}
	n := 0
	i := 1
	for i < len(descriptor) && descriptor[i] != ')' {
		switch descriptor[i] {
		case 'B', 'C', 'F', 'I', 'S', 'Z':
			n += 4
			i++
		case 'J', 'D':
			n += 8
			i++
		case 'L':
			j := i + 1
			for j < len(descriptor) && descriptor[j] != ';' {
				j++
			}
			if j >= len(descriptor) {
				return 0, fmt.Errorf("malformed descriptor %q", descriptor)
			}
			i = j + 1
			n += 4
		case '[':
			j := i
			for j < len(descriptor) && descriptor[j] == '[' {
				j++
			}
			if j >= len(descriptor) {
				return 0, fmt.Errorf("malformed descriptor %q", descriptor)
			}
			if descriptor[j] == 'L' {
				for j < len(descriptor) && descriptor[j] != ';' {
					j++
				}
			}
			i = j + 1
			n += 4
		default:
			return 0, fmt.Errorf("malformed descriptor %q", descriptor)
		}
	}
	return n, nil
}
