package vm

import "github.com/mstoykov/minijvm/pkg/classfile"

// Registry is the class-name → *ClassFile map (§2 component 2, §9 "global
// state"); each VM owns one. It resolves ParentClass eagerly at load time rather
// than lazily on the main-class path only, so that a method inherited
// through a non-entry class's superclass chain resolves correctly the
// first time it is looked up (SPEC_FULL.md's resolution of the
// parent_class/super_class open question).
type Registry struct {
	loader  ClassLoader
	classes map[string]*classfile.ClassFile
}

func NewRegistry(loader ClassLoader) *Registry {
	return &Registry{
		loader:  loader,
		classes: make(map[string]*classfile.ClassFile),
	}
}

// Load returns the registered Class for name, loading and linking it first
// if necessary. A placeholder is inserted into the registry before
// resolving the parent chain, so a cycle in the superclass graph resolves
// to the same (possibly still-linking) entry rather than recursing forever
// (§9 "recursive class loading").
func (r *Registry) Load(name string) (*classfile.ClassFile, error) {
	if cf, ok := r.classes[name]; ok {
		return cf, nil
	}

	cf, err := r.loader.LoadClass(name)
	if err != nil {
		return nil, errUnresolvedClass(name)
	}
	r.classes[name] = cf
	cf.StaticFields = make([]byte, cf.NumStaticFields*SZ_INT)

	if cf.SuperClass != 0 {
		superName, err := classfile.GetClassName(cf.ConstantPool, cf.SuperClass)
		if err != nil {
			return nil, err
		}
		parent, err := r.Load(superName)
		if err != nil {
			return nil, err
		}
		cf.ParentClass = parent
	}

	return cf, nil
}
