package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/coffersTech/nanosearch/internal/engine"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"
)

const maxLineSize = 1 << 20

type grepOptions struct {
	field       string
	count       bool
	lineNumbers bool
}

func newGrepCmd() *cobra.Command {
	opts := &grepOptions{}

	cmd := &cobra.Command{
		Use:   "grep QUERY [FILE...]",
		Short: "Print the lines of local files that match a search query",
		Long: `Print the lines of local files that match a search query.

Files ending in .zst are decompressed on the fly. With no files, or when a
file is "-", standard input is read. With --field each line is parsed as a
JSON object and the query is matched against that field only; lines that
are not JSON objects or lack the field are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args[1:]
			if len(files) == 0 {
				files = []string{"-"}
			}
			return runGrep(cmd.InOrStdin(), cmd.OutOrStdout(), args[0], files, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.field, "field", "f", "", "Match a field of JSON lines instead of the whole line")
	cmd.Flags().BoolVarP(&opts.count, "count", "c", false, "Print only the number of matching lines")
	cmd.Flags().BoolVarP(&opts.lineNumbers, "line-number", "n", false, "Prefix lines with their line number")
	return cmd
}

func runGrep(stdin io.Reader, out io.Writer, q string, files []string, opts *grepOptions) error {
	g := &grepper{
		query: engine.CompileQuery(q),
		opts:  opts,
		out:   bufio.NewWriter(out),
		multi: len(files) > 1,
	}
	defer g.out.Flush()

	for _, name := range files {
		if err := g.grepFile(stdin, name); err != nil {
			return err
		}
	}
	if opts.count {
		fmt.Fprintln(g.out, g.matches)
	}
	return nil
}

type grepper struct {
	query   engine.Query
	opts    *grepOptions
	out     *bufio.Writer
	multi   bool
	parser  fastjson.Parser
	matches int
}

func (g *grepper) grepFile(stdin io.Reader, name string) error {
	var r io.Reader = stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		defer dec.Close()
		r = dec
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		text, ok := g.text(line)
		if !ok || !g.query.Match(text) {
			continue
		}
		g.matches++
		if g.opts.count {
			continue
		}
		if g.multi {
			fmt.Fprintf(g.out, "%s:", name)
		}
		if g.opts.lineNumbers {
			fmt.Fprintf(g.out, "%d:", lineNo)
		}
		fmt.Fprintln(g.out, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// text returns the part of line the query is matched against.
func (g *grepper) text(line string) (string, bool) {
	if g.opts.field == "" {
		return line, true
	}
	v, err := g.parser.Parse(line)
	if err != nil || v.Type() != fastjson.TypeObject {
		return "", false
	}
	field := v.Get(g.opts.field)
	if field == nil {
		return "", false
	}
	if field.Type() == fastjson.TypeString {
		return string(field.GetStringBytes()), true
	}
	return field.String(), true
}
