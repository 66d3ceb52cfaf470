package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mstoykov/minijvm/pkg/vm"
)

func main() {
	classpath := flag.String("classpath", ".", "directory to load .class files from")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: minijvm [-classpath DIR] <ClassName>\n")
		os.Exit(1)
	}
	className := flag.Arg(0)

	loader := vm.NewFileClassLoader(*classpath)
	v := vm.NewVM(loader)

	if err := v.RunMainMethod(className); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing %s: %v\n", className, err)
		os.Exit(1)
	}
}
