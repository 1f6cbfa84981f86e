// Package differ records what one test case did under two revisions: the
// concrete arguments and, per output channel, the bytes each revision
// produced. It does not compare them.
package differ

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IsSymArg reports whether name is a command-line argument object: "arg"
// followed by exactly two digits.
func IsSymArg(name string) bool {
	return len(name) == 5 && strings.HasPrefix(name, "arg") && isDigit(name[3]) && isDigit(name[4])
}

// IsSymOut reports whether name is an instrumented output channel: it starts
// with "out!" and ends in a digit, as in out!<k>!<n>.
func IsSymOut(name string) bool {
	return len(name) > len("out!") && strings.HasPrefix(name, "out!") && isDigit(name[len(name)-1])
}

// ArgIndex returns the index encoded in an argument object name.
func ArgIndex(name string) (uint8, bool) {
	if !IsSymArg(name) {
		return 0, false
	}
	n, _ := strconv.Atoi(name[3:])
	return uint8(n), true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Output is the pair of byte strings one channel produced.
type Output struct {
	A []byte `yaml:"a"`
	B []byte `yaml:"b"`
}

// Differentiator aggregates one test case for a pair of revisions.
type Differentiator struct {
	RevA uint64 `yaml:"rev_a"`
	RevB uint64 `yaml:"rev_b"`
	// Args maps argument index to its concrete value; keys run from 0.
	Args map[uint8]string `yaml:"args"`
	// Outputs maps channel name to the bytes of each revision.
	Outputs map[string]Output `yaml:"outputs"`
	// Stdouts maps revision to the captured standard output.
	Stdouts map[uint64][]byte `yaml:"stdouts"`
}

// New returns an empty Differentiator for revA and revB.
func New(revA, revB uint64) *Differentiator {
	return &Differentiator{
		RevA:    revA,
		RevB:    revB,
		Args:    map[uint8]string{},
		Outputs: map[string]Output{},
		Stdouts: map[uint64][]byte{},
	}
}

// AddArgs records argument values. Together with the arguments already
// recorded the indices must run from 0 without gaps.
func (d *Differentiator) AddArgs(args map[uint8]string) {
	for k, v := range args {
		d.Args[k] = v
	}
	for i := 0; i < len(d.Args); i++ {
		if _, ok := d.Args[uint8(i)]; !ok {
			panic(fmt.Sprintf("differ: argument indices not contiguous, missing %d of %d", i, len(d.Args)))
		}
	}
}

// ArgList returns the arguments in index order.
func (d *Differentiator) ArgList() []string {
	list := make([]string, len(d.Args))
	for k, v := range d.Args {
		if int(k) < len(list) {
			list[k] = v
		}
	}
	return list
}

// AddOutput records the bytes channel name produced under each revision.
func (d *Differentiator) AddOutput(name string, a, b []byte) error {
	if !IsSymOut(name) {
		return fmt.Errorf("differ: %q is not an output channel name", name)
	}
	d.Outputs[name] = Output{A: a, B: b}
	return nil
}

// SetStdout records the standard output of rev.
func (d *Differentiator) SetStdout(rev uint64, data []byte) {
	d.Stdouts[rev] = data
}

// String renders the record as
// {("a0" "a1") {:out!1!2 {<revA> \x.. <revB> \x..} ...}}.
func (d *Differentiator) String() string {
	var b strings.Builder
	b.WriteString("{(")
	for i, arg := range d.ArgList() {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeQuoted(&b, arg)
	}
	b.WriteString(") {")

	names := make([]string, 0, len(d.Outputs))
	for name := range d.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteString(" :")
		} else {
			b.WriteByte(':')
		}
		out := d.Outputs[name]
		b.WriteString(name)
		b.WriteString(" {")
		b.WriteString(strconv.FormatUint(d.RevA, 10))
		b.WriteByte(' ')
		writeHex(&b, out.A)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(d.RevB, 10))
		b.WriteByte(' ')
		writeHex(&b, out.B)
		b.WriteByte('}')
	}
	b.WriteString("}}")
	return b.String()
}

// writeQuoted wraps s in double quotes, escaping quotes and backslashes.
func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
}

const hexDigits = "0123456789abcdef"

func writeHex(b *strings.Builder, data []byte) {
	for _, c := range data {
		b.WriteString(`\x`)
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0xf])
	}
}
