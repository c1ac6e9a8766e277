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

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/plan7go/plan7/builder"
	"github.com/plan7go/plan7/plan7"
	"github.com/plan7go/plan7/search"
)

// configFile is the optional TOML file overriding pipeline and builder
// defaults before the command line flags apply.
type configFile struct {
	Pipeline struct {
		F1         *float64 `toml:"f1"`
		F2         *float64 `toml:"f2"`
		F3         *float64 `toml:"f3"`
		BiasFilter *bool    `toml:"bias_filter"`
		Null2      *bool    `toml:"null2"`
		E          *float64 `toml:"e"`
		DomE       *float64 `toml:"dom_e"`
		IncE       *float64 `toml:"inc_e"`
		IncDomE    *float64 `toml:"inc_dom_e"`
	} `toml:"pipeline"`
	Builder struct {
		Symfrac     *float64 `toml:"symfrac"`
		Fragthresh  *float64 `toml:"fragthresh"`
		Seed        *uint64  `toml:"seed"`
		ScoreMatrix *string  `toml:"score_matrix"`
	} `toml:"builder"`
}

// loadConfig applies a TOML config file onto option structs.
func loadConfig(file string, popt *search.PipelineOptions, bopt *builder.Options) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var cfg configFile
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("%s: %s", file, err)
	}
	if v := cfg.Pipeline.F1; v != nil {
		popt.F1 = *v
	}
	if v := cfg.Pipeline.F2; v != nil {
		popt.F2 = *v
	}
	if v := cfg.Pipeline.F3; v != nil {
		popt.F3 = *v
	}
	if v := cfg.Pipeline.BiasFilter; v != nil {
		popt.BiasFilter = *v
	}
	if v := cfg.Pipeline.Null2; v != nil {
		popt.Null2 = *v
	}
	if v := cfg.Pipeline.E; v != nil {
		popt.Thresholds.E = *v
	}
	if v := cfg.Pipeline.DomE; v != nil {
		popt.Thresholds.DomE = *v
	}
	if v := cfg.Pipeline.IncE; v != nil {
		popt.Thresholds.IncE = *v
	}
	if v := cfg.Pipeline.IncDomE; v != nil {
		popt.Thresholds.IncDomE = *v
	}
	if bopt != nil {
		if v := cfg.Builder.Symfrac; v != nil {
			bopt.Symfrac = *v
		}
		if v := cfg.Builder.Fragthresh; v != nil {
			bopt.Fragthresh = *v
		}
		if v := cfg.Builder.Seed; v != nil {
			bopt.Seed = *v
		}
		if v := cfg.Builder.ScoreMatrix; v != nil {
			bopt.ScoreMatrix = *v
		}
	}
	return nil
}

// addPipelineFlags registers the flags shared by the searching
// commands.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "TOML config file with pipeline/builder settings")
	cmd.Flags().Float64("F1", search.DefaultPipelineOptions.F1, "MSV filter P-value threshold")
	cmd.Flags().Float64("F2", search.DefaultPipelineOptions.F2, "Viterbi filter P-value threshold")
	cmd.Flags().Float64("F3", search.DefaultPipelineOptions.F3, "Forward filter P-value threshold")
	cmd.Flags().Bool("no-bias-filter", false, "turn off the composition bias filter")
	cmd.Flags().Bool("no-null2", false, "turn off the null2 bias correction")
	cmd.Flags().Float64P("evalue", "E", search.DefaultThresholds.E, "report E-value threshold")
	cmd.Flags().Float64("dom-evalue", search.DefaultThresholds.DomE, "report domain E-value threshold")
	cmd.Flags().Float64("inc-evalue", search.DefaultThresholds.IncE, "inclusion E-value threshold")
	cmd.Flags().Float64("inc-dom-evalue", search.DefaultThresholds.IncDomE, "inclusion domain E-value threshold")
	cmd.Flags().Float64P("score", "T", 0, "report by bit score instead of E-value")
	cmd.Flags().String("cut", "", `model bit cutoffs to use ("gathering", "trusted" or "noise")`)
	cmd.Flags().Float64P("search-space", "Z", 0, "override the sequence search space size")
	cmd.Flags().Float64("dom-search-space", 0, "override the domain search space size")
	cmd.Flags().StringP("out-file", "o", "-", `output file, .gz suffix compresses ("-" for stdout)`)
	cmd.Flags().String("format", "targets", `output table format: "targets", "domains" or "pfam"`)
	cmd.Flags().Uint64("seed", 42, "RNG seed for model calibration, 0 for nondeterministic")
}

// pipelineOptionsFromFlags assembles the cascade options.
func pipelineOptionsFromFlags(cmd *cobra.Command, bopt *builder.Options) *search.PipelineOptions {
	opt := search.DefaultPipelineOptions

	if cfg := getFlagString(cmd, "config"); cfg != "" {
		checkError(loadConfig(expandPath(cfg), &opt, bopt))
	}

	if cmd.Flags().Changed("F1") {
		opt.F1 = getFlagNonNegativeFloat64(cmd, "F1")
	}
	if cmd.Flags().Changed("F2") {
		opt.F2 = getFlagNonNegativeFloat64(cmd, "F2")
	}
	if cmd.Flags().Changed("F3") {
		opt.F3 = getFlagNonNegativeFloat64(cmd, "F3")
	}
	if cmd.Flags().Changed("no-bias-filter") {
		opt.BiasFilter = !getFlagBool(cmd, "no-bias-filter")
	}
	if cmd.Flags().Changed("no-null2") {
		opt.Null2 = !getFlagBool(cmd, "no-null2")
	}
	if cmd.Flags().Changed("evalue") {
		opt.Thresholds.E = getFlagNonNegativeFloat64(cmd, "evalue")
	}
	if cmd.Flags().Changed("dom-evalue") {
		opt.Thresholds.DomE = getFlagNonNegativeFloat64(cmd, "dom-evalue")
	}
	if cmd.Flags().Changed("inc-evalue") {
		opt.Thresholds.IncE = getFlagNonNegativeFloat64(cmd, "inc-evalue")
	}
	if cmd.Flags().Changed("inc-dom-evalue") {
		opt.Thresholds.IncDomE = getFlagNonNegativeFloat64(cmd, "inc-dom-evalue")
	}
	if cmd.Flags().Changed("score") {
		opt.Thresholds.T = getFlagFloat64(cmd, "score")
		opt.Thresholds.UseT = true
	}
	if cut := getFlagString(cmd, "cut"); cut != "" {
		choice, ok := plan7.ParseBitCutoffChoice(cut)
		if !ok {
			checkError(fmt.Errorf("invalid value of flag --cut: %s", cut))
		}
		opt.Thresholds.BitCutoffs = choice
	}
	if cmd.Flags().Changed("search-space") {
		opt.Z = getFlagNonNegativeFloat64(cmd, "search-space")
		opt.ZSet = true
	}
	if cmd.Flags().Changed("dom-search-space") {
		opt.DomZ = getFlagNonNegativeFloat64(cmd, "dom-search-space")
		opt.DomZSet = true
	}
	if cmd.Flags().Changed("seed") || bopt == nil {
		opt.Calibration.Seed = getFlagUint64(cmd, "seed")
	} else {
		opt.Calibration.Seed = bopt.Seed
	}
	return &opt
}
