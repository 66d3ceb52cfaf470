// Package classfile parses JVM .class files into the data model the
// interpreter links and executes in place. It verifies only the magic
// number and structural shape of the file; bytecode verification is out of
// scope.
//
// The types here double as the engine's runtime model: per the lifecycle
// described by the spec this package's parser produces a ClassFile, and the
// engine (pkg/vm) enriches it in place — filling ParentClass, ClinitRan, and
// the per-constant-pool-entry resolution caches as linking proceeds. There
// is no separate "runtime class" wrapper.
package classfile

// Access flags (the subset the interpreter inspects).
const (
	AccPublic   = 0x0001
	AccStatic   = 0x0008
	AccSuper    = 0x0020
	AccNative   = 0x0100
	AccAbstract = 0x0400
)

// ClassFile is the fully parsed, and later linked, representation of a
// compiled .class file. ParentClass, ClinitRan and StaticFields are empty
// until the engine links/initializes the class; everything else is filled
// by Parse.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool []ConstantPoolEntry
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []*FieldInfo
	Methods      []*MethodInfo

	// NumStaticFields and NumInstanceFields are the slot counts assigned
	// while numbering Findex below; the engine sizes StaticFields and each
	// Object's instance-field region from these.
	NumStaticFields   int
	NumInstanceFields int

	// ParentClass is resolved eagerly by the registry at load time (see
	// SPEC_FULL.md's resolution of the parent_class/super_class open
	// question), never re-bound once non-nil.
	ParentClass *ClassFile
	// ClinitRan latches true exactly once, after <clinit> unwinds.
	ClinitRan bool
	// StaticFields holds this class's static field storage, one 4-byte
	// cell per slot, indexed by FieldInfo.Findex. Allocated when the class
	// is registered.
	StaticFields []byte
}

// Name returns the class's own fully-qualified name.
func (cf *ClassFile) Name() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by exact name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for _, m := range cf.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// ConstantPoolEntry is implemented by every constant pool variant. Index 0
// of a ConstantPool slice is always nil (the pool is 1-indexed).
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct {
	Value string
}

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct {
	Value int32
}

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

// ConstantClass is a symbolic reference to a class by name. ResolvedClass is
// the resolution cache described in spec §3/§4.2: empty until
// resolveClassRef binds it, idempotently, then stable for the process
// lifetime.
type ConstantClass struct {
	NameIndex     uint16
	ResolvedClass *ClassFile
}

func (c *ConstantClass) Tag() uint8 { return TagClass }

type ConstantString struct {
	StringIndex uint16
}

func (c *ConstantString) Tag() uint8 { return TagString }

// ConstantNameAndType pairs a name with a descriptor, both as UTF-8 indexes.
type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

// ConstantFieldref is a symbolic (class, name, descriptor) field reference.
// Ftype/Findex are the resolution cache from §4.4: empty until a
// getfield/putfield/getstatic/putstatic resolves them. The owning class is
// deliberately not cached here — by contract it stays reachable via the
// ClassIndex entry's ResolvedClass (§4.4).
type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16

	Resolved bool
	Ftype    byte
	Findex   int
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }

// ConstantMethodref is a symbolic (class, name, descriptor) method
// reference. Exactly one of Direct/VTable is populated, depending on which
// invocation mode first resolves this entry (§4.3): Direct+DirectOwner+
// ArgsLen for static/special, VTable+ArgsLen for virtual. When a static
// target is native, ArgsLen is left unset and Native is set instead.
type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16

	ArgsLen int
	Direct  *MethodInfo
	// DirectOwner is the class that declares Direct, mirroring
	// MethodEntry.OwningClass for the static/special cache path.
	DirectOwner *ClassFile
	VTable      *MethodTable
	// Native marks that resolution determined the target is a native
	// method; invokestatic must not build a frame for it (§4.3, §4.7).
	Native bool
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }

// constantPlaceholder represents a pool entry whose tag is recognized and
// skipped but not modeled (Float/Long/Double/MethodHandle/... — see
// SPEC_FULL.md's two-slot-values decision).
type constantPlaceholder struct {
	tag uint8
}

func (c *constantPlaceholder) Tag() uint8 { return c.tag }

// MethodTable is the per-call-site virtual-dispatch cache keyed by the
// receiver's runtime class (§4.3 mode 3, §8 idempotence property). A linear
// scan would suffice at the target program sizes; a map keeps lookup O(1)
// without extra code.
type MethodTable struct {
	entries map[*ClassFile]*MethodEntry
}

// MethodEntry is a resolved virtual-dispatch result: the class whose method
// table slot matched, and the method itself.
type MethodEntry struct {
	OwningClass *ClassFile
	Method      *MethodInfo
}

func NewMethodTable() *MethodTable {
	return &MethodTable{entries: make(map[*ClassFile]*MethodEntry)}
}

func (mt *MethodTable) Lookup(receiver *ClassFile) (*MethodEntry, bool) {
	e, ok := mt.entries[receiver]
	return e, ok
}

func (mt *MethodTable) Install(receiver *ClassFile, entry *MethodEntry) {
	mt.entries[receiver] = entry
}

// FieldInfo is a field as declared in the .class file, plus the slot index
// the parser assigns in declaration order (static and instance fields are
// numbered separately, per §6).
type FieldInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Ftype       byte
	Findex      int
}

func (f *FieldInfo) IsStatic() bool { return f.AccessFlags&AccStatic != 0 }

// MethodInfo is a method as declared in the .class file. ArgsLen is the
// descriptor's parameter byte-size excluding the receiver (§4.1), computed
// once by the parser.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Code        *CodeAttribute
	ArgsLen     int
}

func (m *MethodInfo) IsStatic() bool   { return m.AccessFlags&AccStatic != 0 }
func (m *MethodInfo) IsNative() bool   { return m.AccessFlags&AccNative != 0 }
func (m *MethodInfo) IsAbstract() bool { return m.AccessFlags&AccAbstract != 0 }

// AttributeInfo is a raw, unparsed class/field/method attribute.
type AttributeInfo struct {
	Name string
	Data []byte
}

// CodeAttribute is a method's Code attribute: the raw bytecode plus the
// byte-granular locals/stack ceilings the frame is sized from (§3). Parse
// fills MaxStack/MaxLocals with the class file's slot counts times the
// 4-byte cell width.
type CodeAttribute struct {
	MaxStack   uint16
	MaxLocals  uint16
	CodeLength uint32
	Code       []byte
}
