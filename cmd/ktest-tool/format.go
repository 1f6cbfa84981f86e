package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/itchyny/timefmt-go"
	"github.com/mattn/go-runewidth"

	"github.com/speakeasy-api/diffvm/pkg/corpus"
	"github.com/speakeasy-api/diffvm/pkg/ktest"
)

const (
	colorBold  = "\x1b[1m"
	colorRed   = "\x1b[31m"
	colorReset = "\x1b[0m"
)

// printer writes labelled lines with the labels padded to a common width.
type printer struct {
	w     io.Writer
	color bool
	width int
}

func (p *printer) label(s string) string {
	s = runewidth.FillRight(s, p.width)
	if p.color {
		return colorBold + s + colorReset
	}
	return s
}

func (p *printer) line(label, format string, args ...any) {
	fmt.Fprintf(p.w, "%s: %s\n", p.label(label), fmt.Sprintf(format, args...))
}

// printSeed writes the contents of one seed file.
func printSeed(w io.Writer, path string, f *ktest.File, color bool) {
	labels := []string{"ktest file", "args", "num objects"}
	if n := len(f.Objects); n > 0 {
		labels = append(labels, objectLabel(n-1))
	}
	width := 0
	for _, l := range labels {
		width = max(width, runewidth.StringWidth(l))
	}
	p := &printer{w: w, color: color, width: width}

	p.line("ktest file", "%q", path)
	quoted := make([]string, len(f.Args))
	for i, a := range f.Args {
		quoted[i] = strconv.Quote(a)
	}
	p.line("args", "[%s]", strings.Join(quoted, ", "))
	if f.SymArgvs > 0 {
		p.line("num objects", "%d (%d symbolic args, max %d bytes)", len(f.Objects), f.SymArgvs, f.SymArgvLen)
	} else {
		p.line("num objects", "%d", len(f.Objects))
	}
	for i, o := range f.Objects {
		l := objectLabel(i)
		p.line(l, "name: %q", o.Name)
		p.line(l, "size: %d", len(o.Bytes))
		p.line(l, "data: %s", quoteBytes(o.Bytes))
		p.line(l, "hex : 0x%x", o.Bytes)
		if n, ok := intValue(o.Bytes); ok {
			p.line(l, "int : %d", n)
		}
		p.line(l, "text: %s", printable(o.Bytes))
	}
}

func objectLabel(i int) string {
	return fmt.Sprintf("object %d", i)
}

func quoteBytes(b []byte) string {
	var sb strings.Builder
	sb.WriteString("b'")
	for _, c := range b {
		switch {
		case c == '\\' || c == '\'':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

// intValue decodes objects of 1, 2, 4 or 8 bytes as little-endian signed
// integers.
func intValue(b []byte) (int64, bool) {
	switch len(b) {
	case 1:
		return int64(int8(b[0])), true
	case 2, 4, 8:
	default:
		return 0, false
	}
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	shift := 64 - 8*uint(len(b))
	return int64(v<<shift) >> shift, true
}

func printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 0x20 && c < 0x7f {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// printCase writes one corpus entry on a line.
func printCase(w io.Writer, tc *corpus.TestCase, color bool) {
	mark := " "
	if tc.Divergent {
		mark = "!"
		if color {
			mark = colorRed + mark + colorReset
		}
	}
	rendering := "{}"
	if tc.Diff != nil {
		rendering = tc.Diff.String()
	}
	fmt.Fprintf(w, "%s %s %s state=%d %s\n",
		mark, tc.ID, timefmt.Format(tc.Created, "%Y-%m-%dT%H:%M:%SZ"), tc.StateID, rendering)
}
