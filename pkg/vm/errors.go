package vm

import "fmt"

// Kind classifies a VMError so callers (and tests) can switch on failure
// mode without parsing messages.
type Kind int

const (
	UnresolvedClass Kind = iota
	UnresolvedMethod
	UnresolvedField
	NoMainMethod
	UnknownOpcode
	NativeUnsupported
)

func (k Kind) String() string {
	switch k {
	case UnresolvedClass:
		return "UnresolvedClass"
	case UnresolvedMethod:
		return "UnresolvedMethod"
	case UnresolvedField:
		return "UnresolvedField"
	case NoMainMethod:
		return "NoMainMethod"
	case UnknownOpcode:
		return "UnknownOpcode"
	case NativeUnsupported:
		return "NativeUnsupported"
	default:
		return "Unknown"
	}
}

// VMError is the engine's single error type. Every resolution/dispatch
// failure is fatal (§7): there is no local recovery, only a diagnostic
// naming the symbolic reference involved.
type VMError struct {
	Kind Kind
	Ref  string // "class.name:descriptor" or similar, empty if not applicable
	Msg  string
}

func (e *VMError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Ref, e.Msg)
}

func errUnresolvedClass(name string) error {
	return &VMError{Kind: UnresolvedClass, Ref: name, Msg: "class not found by loader"}
}

func errUnresolvedMethod(class, name, descriptor string) error {
	return &VMError{Kind: UnresolvedMethod, Ref: fmt.Sprintf("%s.%s:%s", class, name, descriptor), Msg: "not found along superclass chain"}
}

func errUnresolvedField(class, name, descriptor string) error {
	return &VMError{Kind: UnresolvedField, Ref: fmt.Sprintf("%s.%s:%s", class, name, descriptor), Msg: "not found along superclass chain"}
}

func errNoMainMethod(class string) error {
	return &VMError{Kind: NoMainMethod, Ref: class, Msg: "no public static void main(String[])"}
}

func errUnknownOpcode(class string, opcode byte, pc int) error {
	return &VMError{Kind: UnknownOpcode, Ref: class, Msg: fmt.Sprintf("opcode 0x%02X at pc=%d", opcode, pc)}
}
