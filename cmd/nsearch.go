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
	"github.com/plan7go/plan7/plan7"
	"github.com/plan7go/plan7/search"
)

var nsearchCmd = &cobra.Command{
	Use:   "nsearch",
	Short: "search models against long nucleotide targets, strand aware",
	Long: `search models against long nucleotide targets, strand aware

Long targets (chromosomes, contigs) are scanned in overlapping windows
so memory stays bounded regardless of target length. Both strands are
searched by default; hits on the reverse strand report descending
envelope coordinates on the forward strand.

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
		format, ok := search.ParseOutputFormat(getFlagString(cmd, "format"))
		if !ok {
			checkError(fmt.Errorf("invalid value of flag --format: %s", getFlagString(cmd, "format")))
		}
		strand, ok := search.ParseStrand(getFlagString(cmd, "strand"))
		if !ok {
			checkError(fmt.Errorf("invalid value of flag --strand: %s", getFlagString(cmd, "strand")))
		}
		blockLength := getFlagPositiveInt(cmd, "block-length")

		ltOpt := search.DefaultLongTargetsOptions
		ltOpt.Strand = strand
		ltOpt.BlockLength = blockLength
		ltOpt.Pipeline = *pipelineOptionsFromFlags(cmd, nil)

		targets, alpha, err := readSequences(expandPath(targetFile), nil)
		checkError(err)
		if !alpha.IsNucleotide() {
			checkError(fmt.Errorf("nsearch expects nucleotide targets, got %s", alpha.Type()))
		}
		if outputLog {
			log.Infof("plan7 v%s", VERSION)
			log.Info()
			log.Infof("  %d target sequences loaded (%s)", targets.Len(), alpha.Type())
		}

		hmms, err := hmmfile.ReadAll(expandPath(queryFile))
		checkError(err)

		lp, err := search.NewLongTargetsPipeline(alpha, &ltOpt)
		checkError(err)

		outfh, err := newOutWriter(outFile, opt)
		checkError(err)
		defer func() {
			checkError(outfh.Close())
		}()

		for qi, h := range hmms {
			if h.Alphabet != alpha {
				checkError(fmt.Errorf("query %s: %s", h.Name, plan7.ErrAlphabetMismatch))
			}
			hits, err := lp.SearchHMM(h, targets)
			checkError(err)
			checkError(hits.Write(outfh, format, qi == 0))
			if outputLog {
				log.Infof("  query %s: %d hits reported", h.Name, len(hits.Reported()))
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(nsearchCmd)

	nsearchCmd.Flags().StringP("query", "q", "", "query model file (.hmm)")
	nsearchCmd.Flags().StringP("targets", "t", "", "target sequence file (FASTA/Q, .gz supported)")
	nsearchCmd.Flags().String("strand", "both", `strand(s) to search: "watson", "crick" or "both"`)
	nsearchCmd.Flags().Int("block-length", search.DefaultLongTargetsOptions.BlockLength,
		"window length for scanning long targets")
	addPipelineFlags(nsearchCmd)
}
