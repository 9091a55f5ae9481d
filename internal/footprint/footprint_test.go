package footprint

import (
	"errors"
	"testing"

	"github.com/sakif/circuitpad/internal/apperror"
)

func TestParse(t *testing.T) {
	fp, err := Parse("SOIC8_w5.30mm_p1.27mm_grid4x2_thermalpad_t-x")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fp.Fn != "soic" || fp.Pins != 8 {
		t.Errorf("head = %q/%d, want soic/8", fp.Fn, fp.Pins)
	}

	want := []Param{
		{Key: "w", Kind: Number, Num: 5.3, Unit: "mm"},
		{Key: "p", Kind: Number, Num: 1.27, Unit: "mm"},
		{Key: "grid", Kind: Grid, Cols: 4, Rows: 2},
		{Key: "thermalpad", Kind: Bool},
		{Key: "t", Kind: Text, Text: "-x"},
	}
	if len(fp.Params) != len(want) {
		t.Fatalf("Params = %+v", fp.Params)
	}
	for i := range want {
		if fp.Params[i] != want[i] {
			t.Errorf("Params[%d] = %+v, want %+v", i, fp.Params[i], want[i])
		}
	}
}

func TestParse_Heads(t *testing.T) {
	tests := []struct {
		in   string
		fn   string
		pins int
	}{
		{"0402", "0402", 0},
		{"res0402", "res0402", 0},
		{"dip16", "dip", 16},
		{"axial", "axial", 0},
	}
	for _, tt := range tests {
		fp, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if fp.Fn != tt.fn || fp.Pins != tt.pins {
			t.Errorf("Parse(%q) = %q/%d, want %q/%d", tt.in, fp.Fn, fp.Pins, tt.fn, tt.pins)
		}
		if fp.String() != tt.in {
			t.Errorf("String() = %q, want %q", fp.String(), tt.in)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", "  "},
		{"bad head", "8soic"},
		{"empty param", "soic8__w5mm"},
		{"duplicate", "soic8_w5mm_w6mm"},
		{"param without key", "soic8_5mm"},
		{"zero grid", "bga_grid0x4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Parse(%q) error = %v, want validation", tt.in, err)
			}
		})
	}
}

func TestString_Canonical(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"soic8_w5.3mm_p1.27mm", "soic8_w5.3mm_p1.27mm"},
		{"soic8_w5.300mm_p01.27mm", "soic8_w5.3mm_p1.27mm"},
		{" QFN32_Thermalpad ", "qfn32_thermalpad"},
		{"bga64_grid8x8_p0.8mm", "bga64_grid8x8_p0.8mm"},
	}
	for _, tt := range tests {
		fp, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if got := fp.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSet(t *testing.T) {
	fp, err := Parse("soic8_w5.3mm_p1.27mm")
	if err != nil {
		t.Fatal(err)
	}

	if err := fp.Set("w", "7.5mm"); err != nil {
		t.Fatalf("Set w: %v", err)
	}
	if err := fp.Set("pl", "1.05mm"); err != nil {
		t.Fatalf("Set pl: %v", err)
	}
	if err := fp.Set("pins", "14"); err != nil {
		t.Fatalf("Set pins: %v", err)
	}
	if got, want := fp.String(), "soic14_w7.5mm_p1.27mm_pl1.05mm"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	p, ok := fp.Get("w")
	if !ok || p.Kind != Number || p.Num != 7.5 {
		t.Errorf("Get(w) = %+v, %v", p, ok)
	}

	errCases := []struct{ key, value string }{
		{"w", "wide"},
		{"W1", "2mm"},
		{"", "2mm"},
		{"pins", "many"},
		{"note", "-a b"},
	}
	for _, c := range errCases {
		if err := fp.Set(c.key, c.value); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Set(%q, %q) error = %v, want validation", c.key, c.value, err)
		}
	}
}

func TestSet_PinsOnSizeCode(t *testing.T) {
	fp, err := Parse("0603")
	if err != nil {
		t.Fatal(err)
	}
	if err := fp.Set("pins", "2"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Set pins on a size code error = %v", err)
	}
}

func TestSetBool(t *testing.T) {
	fp, err := Parse("qfn32_p0.5mm")
	if err != nil {
		t.Fatal(err)
	}

	if err := fp.SetBool("thermalpad", true); err != nil {
		t.Fatal(err)
	}
	if got := fp.String(); got != "qfn32_p0.5mm_thermalpad" {
		t.Errorf("String() = %q", got)
	}
	// Setting an existing flag again is a no-op.
	if err := fp.SetBool("thermalpad", true); err != nil {
		t.Fatal(err)
	}
	if len(fp.Params) != 2 {
		t.Errorf("Params = %+v", fp.Params)
	}

	if err := fp.SetBool("thermalpad", false); err != nil {
		t.Fatal(err)
	}
	if got := fp.String(); got != "qfn32_p0.5mm" {
		t.Errorf("String() = %q", got)
	}
	if fp.Remove("thermalpad") {
		t.Error("Remove reported a missing parameter as removed")
	}
	if err := fp.SetBool("bad key", true); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("SetBool error = %v", err)
	}
}

func TestSet_RoundTrip(t *testing.T) {
	fp, err := Parse("dip8")
	if err != nil {
		t.Fatal(err)
	}
	_ = fp.Set("w", "300mil")
	_ = fp.Set("grid", "2x4")
	_ = fp.SetBool("socket", true)

	again, err := Parse(fp.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", fp.String(), err)
	}
	if again.String() != fp.String() {
		t.Errorf("round trip %q -> %q", fp.String(), again.String())
	}
}
