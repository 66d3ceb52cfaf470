package vm

import (
	"fmt"
	"path/filepath"

	"github.com/mstoykov/minijvm/pkg/classfile"
)

// ClassLoader loads a single named class. It is the engine's one external
// collaborator (§6) — the registry calls it at most once per class name,
// memoizing the result itself, so a ClassLoader implementation need not
// cache.
type ClassLoader interface {
	LoadClass(name string) (*classfile.ClassFile, error)
}

// FileClassLoader reads "<ClassPath>/<name>.class" from a single configured
// directory. This is the teacher's UserClassLoader minus the JDK jmod
// bootstrap chain (see DESIGN.md) — this engine only ever needs to load
// user classes, never real JDK library classes.
type FileClassLoader struct {
	ClassPath string
}

func NewFileClassLoader(classPath string) *FileClassLoader {
	return &FileClassLoader{ClassPath: classPath}
}

func (cl *FileClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	path := filepath.Join(cl.ClassPath, name+".class")
	cf, err := classfile.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s from %s: %w", name, path, err)
	}
	return cf, nil
}
