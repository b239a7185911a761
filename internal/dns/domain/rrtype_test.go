package domain

import "testing"

func TestRRType_StringAndLookup(t *testing.T) {
	for typ, name := range rrTypeNames {
		if got := typ.String(); got != name {
			t.Errorf("String(%d) = %q, want %q", typ, got, name)
		}
		if got := RRTypeFromString(name); got != typ {
			t.Errorf("RRTypeFromString(%q) = %d, want %d", name, got, typ)
		}
	}
	if got := RRType(99).String(); got != "TYPE99" {
		t.Errorf("unexpected unknown type string %q", got)
	}
	if got := RRTypeFromString("BOGUS"); got != 0 {
		t.Errorf("expected 0 for unknown name, got %d", got)
	}
}

func TestRRType_IsAddress(t *testing.T) {
	cases := map[RRType]bool{
		RRTypeA:     true,
		RRTypeAAAA:  true,
		RRTypeMX:    false,
		RRTypeTXT:   false,
		RRTypeHTTPS: false,
		RRTypeANY:   false,
	}
	for typ, want := range cases {
		if got := typ.IsAddress(); got != want {
			t.Errorf("%s.IsAddress() = %v, want %v", typ, got, want)
		}
	}
}

func TestRRClass_String(t *testing.T) {
	if RRClassIN.String() != "IN" || RRClassCH.String() != "CH" || RRClassANY.String() != "ANY" {
		t.Fatalf("unexpected class names")
	}
	if RRClass(42).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for unassigned class")
	}
}
