// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"io"
	"os"
)

// printer writes user-facing CLI output. Tests swap the destination to
// capture output without touching the process streams.
type printer struct {
	out io.Writer
}

// Printer is the CLI output sink for every Run* command.
var Printer = &printer{out: os.Stdout}

func (p *printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) Println(args ...any) {
	fmt.Fprintln(p.out, args...)
}

func (p *printer) Fprintf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
