package ktest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/speakeasy-api/diffvm/pkg/logging"
)

const (
	// MaxObjects is the exclusive upper bound on objects in a generated seed.
	MaxObjects = 64

	// DefaultOutput is the path Build results are written to by default.
	DefaultOutput = "file.bout"

	// StdoutSize is the fixed size of the symbolic stdout object.
	StdoutSize = 1024

	// statSize is the size of struct stat on linux/amd64.
	statSize = 144

	modelVersion = 1
)

// ErrUsage reports a malformed generator command line.
var ErrUsage = errors.New("ktest: malformed command line")

// Usage is the help text of the generator command line.
const Usage = `Usage: %s <options>
   where options are:
       --sym-arg <ARG>
       --sym-args <NUM> <ARG>...
       --sym-file <FILE>
       --sym-stdin <FILE>
       --sym-stdout <FILE>
       --second-var <NAME> <SIZE> <VALUE>
       --bout-file <FILE>   (default: file.bout)
`

// Generator builds a seed from concrete inputs. Arguments and second-order
// variables become objects in the order they are added; files, stdin and
// stdout follow at Build time, then a model_version object.
type Generator struct {
	// Output is where WriteFile stores the seed.
	Output string

	program string
	args    []string
	objects []Object
	nargs   int
	files   []string
	stdin   string
	stdout  string
	logger  logging.Logger
}

// NewGenerator returns a Generator whose argument vector starts with program.
func NewGenerator(program string) *Generator {
	return &Generator{
		Output:  DefaultOutput,
		program: program,
		args:    []string{program},
		logger:  logging.Nop(),
	}
}

// SetLogger sets the logger used to report identified inputs.
func (g *Generator) SetLogger(l logging.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	g.logger = l
}

// AddArg adds a symbolic command-line argument. The object holds the value
// plus a terminating NUL and is named argNN from a counter shared by all
// arguments.
func (g *Generator) AddArg(value string) {
	name := fmt.Sprintf("arg%02d", g.nargs)
	g.nargs++
	g.push(name, append([]byte(value), 0))
	g.args = append(g.args, "-sym-arg", strconv.Itoa(len(value)))
	g.logger.Infof("identified argument name=%s size=%d value=%s", name, len(value)+1, value)
}

// AddSecondVar adds an object of nbytes holding value in little-endian order.
func (g *Generator) AddSecondVar(name string, nbytes int, value uint64) {
	data := make([]byte, nbytes)
	for k := 0; k < nbytes && k < 8; k++ {
		data[k] = byte(value >> (8 * k))
	}
	g.push(name, data)
	g.logger.Infof("identified second order variable name=%s size=%d value=%d", name, nbytes, value)
}

// AddFile adds a symbolic file. Files are named A-data, B-data, ... in the
// order they are added.
func (g *Generator) AddFile(path string) {
	g.files = append(g.files, path)
}

// SetStdin makes the contents of path the symbolic standard input.
func (g *Generator) SetStdin(path string) error {
	if g.stdin != "" {
		return fmt.Errorf("%w: stdin given twice", ErrUsage)
	}
	g.stdin = path
	return nil
}

// SetStdout makes the contents of path the symbolic standard output.
func (g *Generator) SetStdout(path string) error {
	if g.stdout != "" {
		return fmt.Errorf("%w: stdout given twice", ErrUsage)
	}
	g.stdout = path
	return nil
}

func (g *Generator) push(name string, data []byte) {
	if len(g.objects)+1 >= MaxObjects {
		panic("ktest: object capacity exceeded")
	}
	g.objects = append(g.objects, Object{Name: name, Bytes: data})
}

type loadedFile struct {
	data []byte
	info fs.FileInfo
}

func loadFile(path string) (loadedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return loadedFile{}, fmt.Errorf("open %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return loadedFile{}, fmt.Errorf("open %s: %w", path, err)
	}
	return loadedFile{data: data, info: info}, nil
}

// Build reads the files and returns the seed. The Generator is left
// unchanged, so Build may be called again.
func (g *Generator) Build(ctx context.Context) (*File, error) {
	loaded := make([]loadedFile, len(g.files))
	eg, ctx := errgroup.WithContext(ctx)
	for i, path := range g.files {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			lf, err := loadFile(path)
			if err != nil {
				return err
			}
			loaded[i] = lf
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := &Generator{
		program: g.program,
		args:    append([]string(nil), g.args...),
		objects: append([]Object(nil), g.objects...),
	}

	if len(loaded) > 0 {
		maxSize := 0
		for _, lf := range loaded {
			maxSize = max(maxSize, len(lf.data))
		}
		for i, lf := range loaded {
			data := make([]byte, maxSize)
			copy(data, lf.data)
			letter := string(rune('A' + i))
			out.push(letter+"-data", data)
			out.push(letter+"-data-stat", statBytes(lf.info, int64(len(lf.data))))
		}
		out.args = append(out.args, "-sym-files", strconv.Itoa(len(loaded)), strconv.Itoa(maxSize))
	}

	if g.stdin != "" {
		lf, err := loadFile(g.stdin)
		if err != nil {
			return nil, err
		}
		out.push("stdin", lf.data)
		out.push("stdin-stat", statBytes(lf.info, int64(len(lf.data))))
		out.args = append(out.args, "-sym-stdin", strconv.Itoa(len(lf.data)))
	}

	if g.stdout != "" {
		lf, err := loadFile(g.stdout)
		if err != nil {
			return nil, err
		}
		data := make([]byte, StdoutSize)
		copy(data, lf.data)
		out.push("stdout", data)
		out.push("stdout-stat", statBytes(lf.info, StdoutSize))
		out.args = append(out.args, "-sym-stdout")
	}

	var mv [4]byte
	binary.LittleEndian.PutUint32(mv[:], modelVersion)
	out.push("model_version", mv[:])

	return &File{Version: Version, Args: out.args, Objects: out.objects}, nil
}

// WriteFile builds the seed and stores it at g.Output.
func (g *Generator) WriteFile(ctx context.Context) (*File, error) {
	f, err := g.Build(ctx)
	if err != nil {
		return nil, err
	}
	path := g.Output
	if path == "" {
		path = DefaultOutput
	}
	if err := f.ToFile(path); err != nil {
		return nil, err
	}
	return f, nil
}

// statBytes lays out a linux/amd64 struct stat for info with the given size.
// Only the fields a file model reads are filled in.
func statBytes(info fs.FileInfo, size int64) []byte {
	b := make([]byte, statSize)
	le := binary.LittleEndian
	le.PutUint64(b[16:], 1) // nlink
	le.PutUint32(b[24:], unixMode(info.Mode()))
	le.PutUint64(b[48:], uint64(size))
	le.PutUint64(b[56:], 4096)
	le.PutUint64(b[64:], uint64((size+511)/512))
	mt := info.ModTime()
	for _, off := range []int{72, 88, 104} {
		le.PutUint64(b[off:], uint64(mt.Unix()))
		le.PutUint64(b[off+8:], uint64(mt.Nanosecond()))
	}
	return b
}

func unixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m.IsDir():
		mode |= 0o040000
	case m&fs.ModeSymlink != 0:
		mode |= 0o120000
	case m&fs.ModeNamedPipe != 0:
		mode |= 0o010000
	case m&fs.ModeCharDevice != 0:
		mode |= 0o020000
	case m&fs.ModeDevice != 0:
		mode |= 0o060000
	case m&fs.ModeSocket != 0:
		mode |= 0o140000
	default:
		mode |= 0o100000
	}
	return mode
}

// ParseArgs builds a Generator from a command line; argv[0] is the program
// name. Tokens that are not options are ignored. A nil logger discards the
// report of identified inputs.
func ParseArgs(argv []string, logger logging.Logger) (*Generator, error) {
	if len(argv) < 2 {
		return nil, ErrUsage
	}
	g := NewGenerator(argv[0])
	g.SetLogger(logger)
	i := 1
	value := func() (string, error) {
		i++
		if i >= len(argv) || strings.HasPrefix(argv[i], "-") {
			return "", fmt.Errorf("%w: %s needs a value", ErrUsage, argv[i-1])
		}
		return argv[i], nil
	}
	raw := func() (string, error) {
		i++
		if i >= len(argv) {
			return "", fmt.Errorf("%w: %s needs a value", ErrUsage, argv[i-1])
		}
		return argv[i], nil
	}
	number := func() (int, error) {
		s, err := raw()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q is not a count", ErrUsage, s)
		}
		return n, nil
	}

	for ; i < len(argv); i++ {
		switch strings.TrimPrefix(strings.TrimPrefix(argv[i], "-"), "-") {
		case "sym-stdout":
			v, err := value()
			if err != nil {
				return nil, err
			}
			if err := g.SetStdout(v); err != nil {
				return nil, err
			}
		case "sym-stdin":
			v, err := value()
			if err != nil {
				return nil, err
			}
			if err := g.SetStdin(v); err != nil {
				return nil, err
			}
		case "sym-file":
			v, err := value()
			if err != nil {
				return nil, err
			}
			g.AddFile(v)
		case "bout-file":
			v, err := raw()
			if err != nil {
				return nil, err
			}
			g.Output = v
		case "sym-args":
			n, err := number()
			if err != nil {
				return nil, err
			}
			g.logger.Infof("identified %d arguments", n)
			for k := 0; k < n; k++ {
				v, err := raw()
				if err != nil {
					return nil, err
				}
				g.AddArg(v)
			}
		case "sym-arg":
			v, err := raw()
			if err != nil {
				return nil, err
			}
			g.AddArg(v)
		case "second-var":
			name, err := raw()
			if err != nil {
				return nil, err
			}
			nbytes, err := number()
			if err != nil {
				return nil, err
			}
			s, err := raw()
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a value", ErrUsage, s)
			}
			g.AddSecondVar(name, nbytes, v)
		}
	}
	return g, nil
}
