// Package footprint reads and writes footprint strings such as
// "soic8_w5.3mm_p1.27mm" or "bga64_grid8x8_p0.8mm_thermalpad".
//
// A string is a function name with an optional pin count, followed by
// underscore-separated parameters. A parameter is a lowercase key followed by
// a value: a number with an optional unit ("w5.3mm"), a grid ("grid8x8"), or
// free text. A bare key is a boolean flag that is present.
package footprint

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sakif/circuitpad/internal/apperror"
)

// Kind is the value type of a parameter.
type Kind int

const (
	Number Kind = iota
	Bool
	Grid
	Text
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Grid:
		return "grid"
	default:
		return "text"
	}
}

// Param is one parameter. Only the fields for its Kind are set.
type Param struct {
	Key  string
	Kind Kind

	Num  float64
	Unit string

	Rows, Cols int

	Text string
}

// Value renders the value part of the parameter; it is empty for flags.
func (p Param) Value() string {
	switch p.Kind {
	case Number:
		return strconv.FormatFloat(p.Num, 'f', -1, 64) + p.Unit
	case Grid:
		return fmt.Sprintf("%dx%d", p.Cols, p.Rows)
	case Text:
		return p.Text
	default:
		return ""
	}
}

// Footprint is a parsed footprint string. Params keep their input order so
// String round-trips what the user typed.
type Footprint struct {
	Fn     string
	Pins   int // 0 when the string has no pin count
	Params []Param
}

var (
	headRe   = regexp.MustCompile(`^([a-z]+)(\d*)$`)
	paramRe  = regexp.MustCompile(`^([a-z]+)(.*)$`)
	numberRe = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)([a-z]*)$`)
	gridRe   = regexp.MustCompile(`^(\d+)x(\d+)$`)
	keyRe    = regexp.MustCompile(`^[a-z]+$`)
)

// Parse reads s. Input is case-insensitive and surrounding space is ignored.
// A head made only of digits, like the imperial size "0402", is kept whole
// as the function name.
func Parse(s string) (*Footprint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, apperror.ValidationFailed("footprint", "footprint is required")
	}

	parts := strings.Split(s, "_")
	fp := &Footprint{}

	head := parts[0]
	switch m := headRe.FindStringSubmatch(head); {
	case m != nil && strings.HasPrefix(m[2], "0"):
		// "res0402" is a size code, not 402 pins.
		fp.Fn = head
	case m != nil:
		fp.Fn = m[1]
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil || n <= 0 {
				return nil, apperror.ValidationFailed("footprint", fmt.Sprintf("invalid pin count in %q", head))
			}
			fp.Pins = n
		}
	case isDigits(head):
		fp.Fn = head
	default:
		return nil, apperror.ValidationFailed("footprint", fmt.Sprintf("invalid footprint name %q", head))
	}

	for _, part := range parts[1:] {
		if part == "" {
			return nil, apperror.ValidationFailed("footprint", "empty parameter in "+strconv.Quote(s))
		}
		m := paramRe.FindStringSubmatch(part)
		if m == nil {
			return nil, apperror.ValidationFailed("footprint", fmt.Sprintf("invalid parameter %q", part))
		}
		if fp.index(m[1]) >= 0 {
			return nil, apperror.ValidationFailed("footprint", fmt.Sprintf("parameter %q given twice", m[1]))
		}
		p, err := parseValue(m[1], m[2])
		if err != nil {
			return nil, err
		}
		fp.Params = append(fp.Params, p)
	}
	return fp, nil
}

func parseValue(key, raw string) (Param, error) {
	p := Param{Key: key}
	if raw == "" {
		p.Kind = Bool
		return p, nil
	}
	if m := gridRe.FindStringSubmatch(raw); m != nil {
		cols, _ := strconv.Atoi(m[1])
		rows, _ := strconv.Atoi(m[2])
		if cols == 0 || rows == 0 {
			return Param{}, apperror.ValidationFailed(key, fmt.Sprintf("grid %q must be at least 1x1", raw))
		}
		p.Kind, p.Cols, p.Rows = Grid, cols, rows
		return p, nil
	}
	if m := numberRe.FindStringSubmatch(raw); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Param{}, apperror.ValidationFailed(key, fmt.Sprintf("invalid number %q", raw))
		}
		p.Kind, p.Num, p.Unit = Number, n, m[2]
		return p, nil
	}
	if strings.ContainsAny(raw, "_ ") {
		return Param{}, apperror.ValidationFailed(key, fmt.Sprintf("value %q may not contain spaces or underscores", raw))
	}
	p.Kind, p.Text = Text, raw
	return p, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (f *Footprint) index(key string) int {
	for i, p := range f.Params {
		if p.Key == key {
			return i
		}
	}
	return -1
}

// Get returns the parameter named key.
func (f *Footprint) Get(key string) (Param, bool) {
	i := f.index(key)
	if i < 0 {
		return Param{}, false
	}
	return f.Params[i], true
}

// Set parses value the same way Parse does and stores it under key,
// replacing an existing parameter in place or appending a new one. An empty
// value sets a flag. The key "pins" changes the pin count.
func (f *Footprint) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.ToLower(strings.TrimSpace(value))
	if !keyRe.MatchString(key) {
		return apperror.ValidationFailed("key", fmt.Sprintf("invalid parameter name %q", key))
	}

	if key == "pins" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return apperror.ValidationFailed("pins", fmt.Sprintf("invalid pin count %q", value))
		}
		if n > 0 && strings.ContainsAny(f.Fn, "0123456789") {
			return apperror.ValidationFailed("pins", fmt.Sprintf("%s takes no pin count", f.Fn))
		}
		f.Pins = n
		return nil
	}

	// A value starting with a letter would be read back as part of the key.
	if value != "" && value[0] >= 'a' && value[0] <= 'z' {
		return apperror.ValidationFailed(key, fmt.Sprintf("value %q must start with a digit or a symbol", value))
	}
	p, err := parseValue(key, value)
	if err != nil {
		return err
	}
	f.put(p)
	return nil
}

// SetBool adds the flag key when on and removes it otherwise.
func (f *Footprint) SetBool(key string, on bool) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if !keyRe.MatchString(key) {
		return apperror.ValidationFailed("key", fmt.Sprintf("invalid parameter name %q", key))
	}
	if on {
		f.put(Param{Key: key, Kind: Bool})
		return nil
	}
	f.Remove(key)
	return nil
}

// Remove drops key. It reports whether the parameter existed.
func (f *Footprint) Remove(key string) bool {
	i := f.index(key)
	if i < 0 {
		return false
	}
	f.Params = append(f.Params[:i], f.Params[i+1:]...)
	return true
}

func (f *Footprint) put(p Param) {
	if i := f.index(p.Key); i >= 0 {
		f.Params[i] = p
		return
	}
	f.Params = append(f.Params, p)
}

// String is the canonical form: lowercase, numbers without trailing zeros.
func (f *Footprint) String() string {
	var b strings.Builder
	b.WriteString(f.Fn)
	if f.Pins > 0 {
		b.WriteString(strconv.Itoa(f.Pins))
	}
	for _, p := range f.Params {
		b.WriteByte('_')
		b.WriteString(p.Key)
		b.WriteString(p.Value())
	}
	return b.String()
}
