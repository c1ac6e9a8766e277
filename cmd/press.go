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
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/iafan/cwalk"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"

	"github.com/plan7go/plan7/hmmfile"
	"github.com/plan7go/plan7/plan7"
)

var pressCmd = &cobra.Command{
	Use:   "press",
	Short: "press model files into a binary database for fast scanning",
	Long: `press model files into a binary database for fast scanning

The input is a model file, or a directory which is walked for .hmm
files. All models end up in one pressed database of four companion
files sharing a stem:

  .h3m  binary models
  .h3f  binary SSV filter parts
  .h3i  index with per-model byte offsets
  .h3p  full profiles

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

		input := getFlagString(cmd, "in")
		if input == "" {
			checkError(fmt.Errorf("flag -i/--in needed"))
		}
		input = expandPath(input)
		stem := getFlagString(cmd, "out-stem")
		force := getFlagBool(cmd, "force")

		var files []string
		isDir, err := pathutil.IsDir(input)
		checkError(err)
		if isDir {
			pattern := regexp.MustCompile(`\.hmm(\.gz)?$`)
			files, err = collectModelFiles(input, pattern, opt.NumCPUs)
			checkError(err)
			if len(files) == 0 {
				checkError(fmt.Errorf("no .hmm files found in: %s", input))
			}
			if stem == "" {
				stem = strings.TrimRight(input, "/") + "/db"
			}
		} else {
			files = []string{input}
			if stem == "" {
				stem = strings.TrimSuffix(strings.TrimSuffix(input, ".gz"), ".hmm")
			}
		}

		if !force {
			for _, ext := range []string{hmmfile.ExtModel, hmmfile.ExtFilter, hmmfile.ExtIndex, hmmfile.ExtProfile} {
				if fileExists(stem + ext) {
					checkError(fmt.Errorf("%s exists, use --force to overwrite", stem+ext))
				}
			}
		}

		if outputLog {
			log.Infof("plan7 v%s", VERSION)
			log.Info()
			log.Infof("pressing %d model file(s) to %s.h3{m,f,i,p}", len(files), stem)
		}

		var hmms []*plan7.HMM
		for _, file := range files {
			batch, err := hmmfile.ReadAll(file)
			checkError(err)
			hmms = append(hmms, batch...)
		}
		if outputLog {
			log.Infof("  %d models loaded", len(hmms))
		}

		_, err = hmmfile.Press(hmms, stem)
		checkError(err)

		if outputLog {
			log.Infof("  done")
		}
	},
}

// collectModelFiles walks a directory in parallel, gathering files
// matching the pattern.
func collectModelFiles(dir string, pattern *regexp.Regexp, threads int) ([]string, error) {
	files := make([]string, 0, 512)
	ch := make(chan string, threads)
	done := make(chan int)
	go func() {
		for file := range ch {
			files = append(files, file)
		}
		done <- 1
	}()

	cwalk.NumWorkers = threads
	err := cwalk.WalkWithSymlinks(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && pattern.MatchString(info.Name()) {
			ch <- dir + "/" + path
		}
		return nil
	})
	close(ch)
	<-done
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	RootCmd.AddCommand(pressCmd)

	pressCmd.Flags().StringP("in", "i", "", "model file, or a directory of .hmm files")
	pressCmd.Flags().StringP("out-stem", "o", "", "output stem (default: derived from the input)")
	pressCmd.Flags().Bool("force", false, "overwrite an existing pressed database")
}
