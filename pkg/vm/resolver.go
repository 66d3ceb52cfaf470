package vm

import "github.com/mstoykov/minijvm/pkg/classfile"

// resolveClassRef ensures the class named by the CONSTANT_Class entry at
// index is loaded, caching the result on the entry itself (§4.2). Idempotent.
func resolveClassRef(reg *Registry, pool []classfile.ConstantPoolEntry, index uint16) (*classfile.ClassFile, error) {
	entry, ok := pool[index].(*classfile.ConstantClass)
	if !ok {
		return nil, errUnresolvedClass("<malformed ClassRef>")
	}
	if entry.ResolvedClass != nil {
		return entry.ResolvedClass, nil
	}
	name, err := classfile.GetUtf8(pool, entry.NameIndex)
	if err != nil {
		return nil, err
	}
	cf, err := reg.Load(name)
	if err != nil {
		return nil, err
	}
	entry.ResolvedClass = cf
	return cf, nil
}

// findMethod walks cf and its ancestors via ParentClass, returning the
// first method matching name+descriptor whose STATIC bit matches
// wantStatic exactly when requireStatic is true (static resolution) and
// matching regardless of STATIC when requireStatic is false (special and
// virtual resolution) — the most-derived override wins because the walk
// starts at cf (§4.3 mode 3's tie-break).
func findMethod(cf *classfile.ClassFile, name, descriptor string, requireStatic, wantStatic bool) (*classfile.ClassFile, *classfile.MethodInfo) {
	for c := cf; c != nil; c = c.ParentClass {
		if m := c.FindMethod(name, descriptor); m != nil {
			if !requireStatic || m.IsStatic() == wantStatic {
				return c, m
			}
		}
	}
	return nil, nil
}

// resolveStaticMethod implements §4.3 mode 1. nativeHandled is true when
// the matched method is native: the caller must skip frame construction
// and route to the native trampoline instead.
func resolveStaticMethod(reg *Registry, pool []classfile.ConstantPoolEntry, mref *classfile.ConstantMethodref) (method *classfile.MethodInfo, owner *classfile.ClassFile, nativeHandled bool, err error) {
	if mref.Direct != nil {
		return mref.Direct, mref.DirectOwner, mref.Native, nil
	}
	owner, err = resolveClassRef(reg, pool, mref.ClassIndex)
	if err != nil {
		return nil, nil, false, err
	}
	name, desc, err := classfile.NameAndType(pool, mref.NameAndTypeIndex)
	if err != nil {
		return nil, nil, false, err
	}

	declClass, m := findMethod(owner, name, desc, true, true)
	if m == nil {
		className, _ := owner.Name()
		return nil, nil, false, errUnresolvedMethod(className, name, desc)
	}
	mref.Direct = m
	mref.DirectOwner = declClass
	if m.IsNative() {
		mref.Native = true
		return m, declClass, true, nil
	}
	mref.ArgsLen = m.ArgsLen
	return m, declClass, false, nil
}

// resolveSpecialMethod implements §4.3 mode 2: same walk, STATIC bit
// ignored. Used for constructors and private/super-qualified invocation.
func resolveSpecialMethod(reg *Registry, pool []classfile.ConstantPoolEntry, mref *classfile.ConstantMethodref) (method *classfile.MethodInfo, owner *classfile.ClassFile, err error) {
	if mref.Direct != nil {
		return mref.Direct, mref.DirectOwner, nil
	}
	owner, err = resolveClassRef(reg, pool, mref.ClassIndex)
	if err != nil {
		return nil, nil, err
	}
	name, desc, err := classfile.NameAndType(pool, mref.NameAndTypeIndex)
	if err != nil {
		return nil, nil, err
	}
	declClass, m := findMethod(owner, name, desc, false, false)
	if m == nil {
		className, _ := owner.Name()
		return nil, nil, errUnresolvedMethod(className, name, desc)
	}
	mref.Direct = m
	mref.DirectOwner = declClass
	mref.ArgsLen = m.ArgsLen
	return m, declClass, nil
}

// resolveVirtualMethod implements §4.3 mode 3: the call-site MethodTable is
// keyed by the receiver's own runtime class, not the symbolic MethodRef
// class, so an override always wins (§8's VirtualDispatch scenario).
func resolveVirtualMethod(pool []classfile.ConstantPoolEntry, mref *classfile.ConstantMethodref, receiver *classfile.ClassFile) (*classfile.MethodEntry, error) {
	if mref.VTable == nil {
		mref.VTable = classfile.NewMethodTable()
	}
	if entry, ok := mref.VTable.Lookup(receiver); ok {
		return entry, nil
	}
	name, desc, err := classfile.NameAndType(pool, mref.NameAndTypeIndex)
	if err != nil {
		return nil, err
	}
	declClass, m := findMethod(receiver, name, desc, false, false)
	if m == nil {
		className, _ := receiver.Name()
		return nil, errUnresolvedMethod(className, name, desc)
	}
	entry := &classfile.MethodEntry{OwningClass: declClass, Method: m}
	mref.VTable.Install(receiver, entry)
	if mref.ArgsLen == 0 {
		mref.ArgsLen = m.ArgsLen
	}
	return entry, nil
}

// findField walks cf and its ancestors for a field matching name with the
// requested STATIC-ness (§4.4).
func findField(cf *classfile.ClassFile, name string, wantStatic bool) *classfile.FieldInfo {
	for c := cf; c != nil; c = c.ParentClass {
		for _, f := range c.Fields {
			if f.Name == name && f.IsStatic() == wantStatic {
				return f
			}
		}
	}
	return nil
}

// resolveStaticField caches ftype/findex on fref. Per §4.4 the owning class
// is deliberately not cached on the FieldRef; callers re-derive it from the
// ClassRef's own resolution cache (resolveClassRef), which by contract
// stays reachable.
func resolveStaticField(reg *Registry, pool []classfile.ConstantPoolEntry, fref *classfile.ConstantFieldref) error {
	if fref.Resolved {
		return nil
	}
	owner, err := resolveClassRef(reg, pool, fref.ClassIndex)
	if err != nil {
		return err
	}
	name, desc, err := classfile.NameAndType(pool, fref.NameAndTypeIndex)
	if err != nil {
		return err
	}
	f := findField(owner, name, true)
	if f == nil {
		className, _ := owner.Name()
		return errUnresolvedField(className, name, desc)
	}
	fref.Ftype = f.Ftype
	fref.Findex = f.Findex
	fref.Resolved = true
	return nil
}

// resolveInstanceField is the §4.4 instance-field variant: identical walk,
// STATIC clear, findex used as a cell index (byte offset findex*SZ_INT)
// into the Object's field region instead of the class's static array.
func resolveInstanceField(reg *Registry, pool []classfile.ConstantPoolEntry, fref *classfile.ConstantFieldref) error {
	if fref.Resolved {
		return nil
	}
	owner, err := resolveClassRef(reg, pool, fref.ClassIndex)
	if err != nil {
		return err
	}
	name, desc, err := classfile.NameAndType(pool, fref.NameAndTypeIndex)
	if err != nil {
		return err
	}
	f := findField(owner, name, false)
	if f == nil {
		className, _ := owner.Name()
		return errUnresolvedField(className, name, desc)
	}
	fref.Ftype = f.Ftype
	fref.Findex = f.Findex
	fref.Resolved = true
	return nil
}
