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
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/plan7go/plan7/builder"
	"github.com/plan7go/plan7/hmmfile"
	"github.com/plan7go/plan7/plan7"
	"github.com/plan7go/plan7/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "search query models or sequences against a sequence database",
	Long: `search query models or sequences against a sequence database

The query is either a model file (.hmm, one or more models) or a FASTA
file of sequences; a sequence query is turned into a model first, the
phmmer way. Each query is scored against every target sequence through
the staged filter cascade (MSV, bias, Viterbi, Forward), significant
targets are decomposed into domains, and the reported hits are written
as a table.

Target sequences are sharded over the worker threads; each worker runs
its own pipeline and the per-worker results are merged and sorted
before output.

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
		alpha, err := parseAlphabetFlag(getFlagString(cmd, "alphabet"))
		checkError(err)

		bopt := builder.DefaultOptions
		popt := pipelineOptionsFromFlags(cmd, &bopt)
		bopt.Seed = popt.Calibration.Seed

		if outputLog {
			log.Infof("plan7 v%s", VERSION)
			log.Info()
			log.Infof("loading target sequences: %s", targetFile)
		}
		targets, alpha, err := readSequences(expandPath(targetFile), alpha)
		checkError(err)
		if outputLog {
			log.Infof("  %d sequences loaded (%s)", targets.Len(), alpha.Type())
		}

		// resolve the queries: models or sequences
		var queries []interface{}
		var queryNames []string
		if strings.HasSuffix(queryFile, ".hmm") || strings.HasSuffix(queryFile, ".hmm.gz") {
			hmms, err := hmmfile.ReadAll(expandPath(queryFile))
			checkError(err)
			for _, h := range hmms {
				if h.Alphabet != alpha {
					checkError(fmt.Errorf("query %s: %s", h.Name, plan7.ErrAlphabetMismatch))
				}
				queries = append(queries, h)
				queryNames = append(queryNames, h.Name)
			}
		} else {
			qs, qa, err := readSequences(expandPath(queryFile), alpha)
			checkError(err)
			if qa != alpha {
				checkError(plan7.ErrAlphabetMismatch)
			}
			b, err := builder.NewBuilder(alpha, &bopt)
			checkError(err)
			bg := plan7.NewBackground(alpha)
			for _, s := range qs.Sequences {
				h, _, _, err := b.Build(s, bg)
				checkError(err)
				queries = append(queries, h)
				queryNames = append(queryNames, h.Name)
			}
		}
		if outputLog {
			log.Infof("  %d query model(s)", len(queries))
		}

		outfh, err := newOutWriter(outFile, opt)
		checkError(err)
		defer func() {
			checkError(outfh.Close())
		}()

		var pbs *mpb.Progress
		var bar *mpb.Bar
		if opt.Verbose && !opt.Log2File {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(int64(len(queries)),
				mpb.PrependDecorators(
					decor.Name("processed queries: ", decor.WC{W: len("processed queries: "), C: decor.DindentRight}),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
					decor.EwmaETA(decor.ET_STYLE_GO, 10),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)
		}

		for qi, q := range queries {
			sTime := time.Now()
			hits, err := searchParallel(q, targets, alpha, popt, opt.NumCPUs)
			checkError(err)

			err = hits.Write(outfh, format, qi == 0)
			checkError(err)

			if bar != nil {
				bar.EwmaIncrBy(1, time.Since(sTime))
			} else if outputLog {
				log.Infof("  query %s: %d hits reported", queryNames[qi], len(hits.Reported()))
			}
		}
		if pbs != nil {
			pbs.Wait()
		}
	},
}

// searchParallel shards the targets over per-worker pipelines and
// merges the partial results.
func searchParallel(q interface{}, targets *plan7.DigitalSequenceBlock,
	alpha *plan7.Alphabet, popt *search.PipelineOptions, threads int) (*search.TopHits, error) {

	n := targets.Len()
	if threads > n {
		threads = n
	}
	if threads <= 1 {
		pl, err := search.NewPipeline(alpha, popt)
		if err != nil {
			return nil, err
		}
		return pl.SearchHMM(q, targets)
	}

	// pin Z to the full target count so every shard computes final
	// E-values against the same search space
	shardOpt := *popt
	if !shardOpt.ZSet {
		shardOpt.Z = float64(n)
		shardOpt.ZSet = true
	}

	shardSize := (n + threads - 1) / threads
	results := make([]*search.TopHits, 0, threads)
	ch := make(chan *search.TopHits, threads)
	done := make(chan int)
	go func() {
		for th := range ch {
			results = append(results, th)
		}
		done <- 1
	}()

	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error
	for w := 0; w < threads; w++ {
		begin := w * shardSize
		end := begin + shardSize
		if end > n {
			end = n
		}
		if begin >= end {
			break
		}
		wg.Add(1)
		go func(begin, end int) {
			defer wg.Done()
			pl, err := search.NewPipeline(alpha, &shardOpt)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			shard := &plan7.DigitalSequenceBlock{Alphabet: alpha, Sequences: targets.Sequences[begin:end]}
			th, err := pl.SearchHMM(q, shard)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			// restore global target ordinals
			for _, h := range th.Hits {
				h.SeqIdx += begin
			}
			ch <- th
		}(begin, end)
	}
	wg.Wait()
	close(ch)
	<-done
	if firstErr != nil {
		return nil, firstErr
	}
	if len(results) == 0 {
		return search.NewTopHits(), nil
	}

	merged, err := results[0].Merge(results[1:]...)
	if err != nil {
		return nil, err
	}
	if err := merged.Sort(search.SortByKey); err != nil {
		return nil, err
	}
	return merged, nil
}

func init() {
	RootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringP("query", "q", "", "query file: models (.hmm) or sequences (FASTA)")
	searchCmd.Flags().StringP("targets", "t", "", "target sequence file (FASTA/Q, .gz supported)")
	searchCmd.Flags().String("alphabet", "auto", `sequence alphabet: "amino", "dna", "rna" or "auto"`)
	addPipelineFlags(searchCmd)
}
