package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildMinimalClass assembles the bytes of a tiny, valid .class file by hand:
// no JDK is available in this test environment, so fixtures are built in Go
// rather than compiled with javac (see SPEC_FULL.md's test-tooling decision).
// The class declares one static int field "x" and one method,
// "answer()I", whose Code just returns bipush 42.
func buildMinimalClass(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v interface{}) {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
	}

	w(uint32(classMagic))
	w(uint16(0))  // minor
	w(uint16(52)) // major

	// Constant pool: index 0 unused, count = highest_index+1.
	// 1: Utf8 "Minimal"     2: Class -> 1
	// 3: Utf8 "java/lang/Object"  4: Class -> 3
	// 5: Utf8 "x"           6: Utf8 "I"
	// 7: Utf8 "answer"      8: Utf8 "()I"
	// 9: Utf8 "Code"
	w(uint16(10)) // constant_pool_count (count-1 = 9 real entries)

	writeUtf8 := func(s string) {
		w(uint8(TagUtf8))
		w(uint16(len(s)))
		buf.WriteString(s)
	}
	writeClass := func(nameIdx uint16) {
		w(uint8(TagClass))
		w(nameIdx)
	}

	writeUtf8("Minimal")
	writeClass(1)
	writeUtf8("java/lang/Object")
	writeClass(3)
	writeUtf8("x")
	writeUtf8("I")
	writeUtf8("answer")
	writeUtf8("()I")
	writeUtf8("Code")

	w(uint16(AccPublic | AccSuper)) // access_flags
	w(uint16(2))                    // this_class -> Minimal
	w(uint16(4))                    // super_class -> Object
	w(uint16(0))                    // interfaces_count

	// fields_count = 1: static int x
	w(uint16(1))
	w(uint16(AccStatic)) // access_flags
	w(uint16(5))         // name_index -> "x"
	w(uint16(6))         // descriptor_index -> "I"
	w(uint16(0))         // attributes_count

	// methods_count = 1: answer()I with a Code attribute
	w(uint16(1))
	w(uint16(AccPublic | AccStatic))
	w(uint16(7)) // name -> "answer"
	w(uint16(8)) // descriptor -> "()I"
	w(uint16(1)) // attributes_count

	code := []byte{0x10, 0x2A, 0xAC} // bipush 42, ireturn
	var codeAttr bytes.Buffer
	binary.Write(&codeAttr, binary.BigEndian, uint16(2))                // max_stack
	binary.Write(&codeAttr, binary.BigEndian, uint16(0))                // max_locals
	binary.Write(&codeAttr, binary.BigEndian, uint32(len(code)))        // code_length
	codeAttr.Write(code)
	binary.Write(&codeAttr, binary.BigEndian, uint16(0)) // exception_table_length
	binary.Write(&codeAttr, binary.BigEndian, uint16(0)) // attributes_count

	w(uint16(9)) // attribute_name_index -> "Code"
	w(uint32(codeAttr.Len()))
	buf.Write(codeAttr.Bytes())

	w(uint16(0)) // class attributes_count

	return buf.Bytes()
}

func TestParseMinimalClass(t *testing.T) {
	cf, err := Parse(bytes.NewReader(buildMinimalClass(t)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	name, err := cf.Name()
	if err != nil {
		t.Fatalf("Name: %v", err)
	}
	if name != "Minimal" {
		t.Errorf("this_class: got %q, want %q", name, "Minimal")
	}

	if len(cf.Fields) != 1 || cf.Fields[0].Name != "x" || !cf.Fields[0].IsStatic() {
		t.Fatalf("fields: got %+v, want one static field x", cf.Fields)
	}
	if cf.NumStaticFields != 1 || cf.NumInstanceFields != 0 {
		t.Errorf("field slot counts: got static=%d instance=%d, want 1,0", cf.NumStaticFields, cf.NumInstanceFields)
	}

	m := cf.FindMethod("answer", "()I")
	if m == nil {
		t.Fatal("answer()I not found")
	}
	if m.Code == nil || len(m.Code.Code) != 3 {
		t.Fatalf("answer Code: got %+v, want 3-byte bipush/ireturn body", m.Code)
	}
	if m.ArgsLen != 0 {
		t.Errorf("answer ArgsLen: got %d, want 0", m.ArgsLen)
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	if err == nil {
		t.Error("expected error for invalid magic number, got nil")
	}
}

func TestDescriptorArgsLen(t *testing.T) {
	tests := []struct {
		descriptor string
		want       int
	}{
		{"()V", 0},
		{"(I)I", 4},
		{"(II)I", 8},
		{"(Ljava/lang/Object;)V", 4},
		{"([IIZ)V", 12},
	}
	for _, tt := range tests {
		got, err := DescriptorArgsLen(tt.descriptor)
		if err != nil {
			t.Fatalf("DescriptorArgsLen(%q): %v", tt.descriptor, err)
		}
		if got != tt.want {
			t.Errorf("DescriptorArgsLen(%q): got %d, want %d", tt.descriptor, got, tt.want)
		}
	}
}

func TestReturnKind(t *testing.T) {
	tests := []struct {
		descriptor string
		want       byte
	}{
		{"()V", 'V'},
		{"()I", 'I'},
		{"()Ljava/lang/Object;", 'R'},
		{"(I)[I", 'R'},
	}
	for _, tt := range tests {
		if got := ReturnKind(tt.descriptor); got != tt.want {
			t.Errorf("ReturnKind(%q): got %q, want %q", tt.descriptor, got, tt.want)
		}
	}
}
