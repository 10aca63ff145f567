package main

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// console prints user-facing output. Colors are dropped automatically when the
// writer is not a terminal.
type console struct {
	out *termenv.Output
}

func newConsole(w io.Writer, opts ...termenv.OutputOption) *console {
	return &console{out: termenv.NewOutput(w, opts...)}
}

func (c *console) symbol(s, color string) string {
	return c.out.String(s).Foreground(c.out.Color(color)).Bold().String()
}

func (c *console) success(format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.symbol("✓", "2"), fmt.Sprintf(format, args...))
}

func (c *console) failure(format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.symbol("✗", "1"), fmt.Sprintf(format, args...))
}

func (c *console) warning(format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.symbol("!", "3"), fmt.Sprintf(format, args...))
}

func (c *console) info(format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.symbol("•", "4"), fmt.Sprintf(format, args...))
}

func (c *console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) writer() io.Writer {
	return c.out
}
