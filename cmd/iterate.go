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

	"github.com/plan7go/plan7/builder"
	"github.com/plan7go/plan7/hmmfile"
	"github.com/plan7go/plan7/search"
)

var iterateCmd = &cobra.Command{
	Use:   "iterate",
	Short: "iteratively search and refine a query model (jackhmmer style)",
	Long: `iteratively search and refine a query model (jackhmmer style)

Round one searches the query (a single sequence) against the
targets. Included hits are realigned against the model, the model is
rebuilt from the alignment, and the search repeats until the set of
included hits stops changing or the round limit is reached.

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

		queryFile := getFlagString(cmd, "query")
		if queryFile == "" {
			checkError(fmt.Errorf("flag -q/--query needed"))
		}
		targetFile := getFlagString(cmd, "targets")
		if targetFile == "" {
			checkError(fmt.Errorf("flag -t/--targets needed"))
		}
		outFile := getFlagString(cmd, "out-file")
		hmmOut := getFlagString(cmd, "hmm-out")
		maxIter := getFlagPositiveInt(cmd, "max-iterations")
		format, ok := search.ParseOutputFormat(getFlagString(cmd, "format"))
		if !ok {
			checkError(fmt.Errorf("invalid value of flag --format: %s", getFlagString(cmd, "format")))
		}

		bopt := builder.DefaultOptions
		popt := pipelineOptionsFromFlags(cmd, &bopt)
		bopt.Seed = popt.Calibration.Seed

		targets, alpha, err := readSequences(expandPath(targetFile), nil)
		checkError(err)
		if outputLog {
			log.Infof("plan7 v%s", VERSION)
			log.Info()
			log.Infof("  %d target sequences loaded (%s)", targets.Len(), alpha.Type())
		}

		b, err := builder.NewBuilder(alpha, &bopt)
		checkError(err)
		pl, err := search.NewPipeline(alpha, popt)
		checkError(err)

		queries, qa, err := readSequences(expandPath(queryFile), alpha)
		checkError(err)
		if qa != alpha {
			checkError(fmt.Errorf("query and target alphabets differ"))
		}
		if queries.Len() != 1 {
			checkError(fmt.Errorf("iterate expects exactly one query sequence, got %d", queries.Len()))
		}

		it, err := builder.NewIterativeSearch(pl, b, queries.Sequences[0], targets)
		checkError(err)

		outfh, err := newOutWriter(outFile, opt)
		checkError(err)
		defer func() {
			checkError(outfh.Close())
		}()

		var last *builder.IterationResult
		for round := 1; round <= maxIter; round++ {
			result, err := it.Next()
			checkError(err)
			if result == nil {
				break
			}
			last = result
			if outputLog {
				log.Infof("round %d: %d hits included, converged: %v",
					result.Iteration, len(result.Hits.Included()), result.Converged)
			}
			if result.Converged {
				break
			}
		}
		if last == nil {
			checkError(fmt.Errorf("no search round completed"))
		}

		checkError(last.Hits.Write(outfh, format, true))

		if hmmOut != "" {
			fh, err := os.Create(expandPath(hmmOut))
			checkError(err)
			checkError(hmmfile.WriteHMM(fh, last.HMM))
			checkError(fh.Close())
			if outputLog {
				log.Infof("final model written to %s", hmmOut)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(iterateCmd)

	iterateCmd.Flags().StringP("query", "q", "", "query sequence file (FASTA, single record)")
	iterateCmd.Flags().StringP("targets", "t", "", "target sequence file (FASTA/Q, .gz supported)")
	iterateCmd.Flags().IntP("max-iterations", "N", 5, "maximum number of rounds")
	iterateCmd.Flags().String("hmm-out", "", "write the final model to this file")
	addPipelineFlags(iterateCmd)
}
