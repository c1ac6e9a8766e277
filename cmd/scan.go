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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/plan7go/plan7/hmmfile"
	"github.com/plan7go/plan7/search"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "scan query sequences against a pressed model database",
	Long: `scan query sequences against a pressed model database

The search loop is inverted: every model of the pressed database is
scored against each query sequence. Press a model file first with
'plan7 press'. The hits of a query are the models that matched it.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		outputLog := opt.Verbose || opt.Log2File
		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		dbFile := getFlagString(cmd, "db")
		if dbFile == "" {
			checkError(fmt.Errorf("flag -d/--db needed"))
		}
		queryFile := getFlagString(cmd, "query")
		if queryFile == "" {
			checkError(fmt.Errorf("flag -q/--query needed"))
		}
		outFile := getFlagString(cmd, "out-file")
		format, ok := search.ParseOutputFormat(getFlagString(cmd, "format"))
		if !ok {
			checkError(fmt.Errorf("invalid value of flag --format: %s", getFlagString(cmd, "format")))
		}

		popt := pipelineOptionsFromFlags(cmd, nil)

		db, err := hmmfile.OpenPressed(expandPath(dbFile))
		checkError(err)
		defer db.Close()
		if outputLog {
			log.Infof("plan7 v%s", VERSION)
			log.Info()
			log.Infof("pressed database: %s, %d models", dbFile, db.Len())
		}

		queries, alpha, err := readSequences(expandPath(queryFile), nil)
		checkError(err)
		if outputLog {
			log.Infof("  %d query sequence(s) loaded (%s)", queries.Len(), alpha.Type())
		}

		pl, err := search.NewPipeline(alpha, popt)
		checkError(err)

		outfh, err := newOutWriter(outFile, opt)
		checkError(err)
		defer func() {
			checkError(outfh.Close())
		}()

		for qi, s := range queries.Sequences {
			checkError(db.Rewind())
			hits, err := pl.ScanSeq(s, db)
			checkError(err)
			checkError(hits.Write(outfh, format, qi == 0))
			if outputLog {
				log.Infof("  query %s: %d models reported", s.Name, len(hits.Reported()))
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("db", "d", "", "pressed model database (stem or any .h3? file)")
	scanCmd.Flags().StringP("query", "q", "", "query sequence file (FASTA/Q, .gz supported)")
	addPipelineFlags(scanCmd)
}
