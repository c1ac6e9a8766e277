// Copyright © 2024-2025 Ren Oyama <plan7go@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/shenwei356/go-logging"
)

var log = logging.MustGetLogger("plan7")

var logFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{shortfunc} %{level:.4s} %{color:reset} %{message}`,
)

var logFormatPlain = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{shortfunc} %{level:.4s} %{message}`,
)

func init() {
	backend := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
	formatted := logging.NewBackendFormatter(backend, logFormat)
	logging.SetBackend(formatted)
}

// addLog tees log output into a file in addition to stderr.
func addLog(file string, verbose bool) *os.File {
	fh, err := os.Create(file)
	if err != nil {
		checkError(fmt.Errorf("failed to create log file: %s", err))
	}

	var w io.Writer = colorable.NewColorableStderr()
	if !verbose {
		w = io.Discard
	}
	b1 := logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), logFormat)
	b2 := logging.NewBackendFormatter(logging.NewLogBackend(fh, "", 0), logFormatPlain)
	logging.SetBackend(b1, b2)
	return fh
}

func checkError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
