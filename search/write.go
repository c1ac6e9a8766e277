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

package search

import (
	"fmt"
	"io"

	"github.com/plan7go/plan7/plan7"
)

// OutputFormat selects one of the three result table layouts.
type OutputFormat uint8

const (
	FormatTargets OutputFormat = iota // one row per reported hit
	FormatDomains                     // one row per reported domain
	FormatPfam                        // condensed per-domain rows
)

// ParseOutputFormat parses a table format tag.
func ParseOutputFormat(s string) (OutputFormat, bool) {
	switch s {
	case "", "targets":
		return FormatTargets, true
	case "domains", "domain":
		return FormatDomains, true
	case "pfam":
		return FormatPfam, true
	}
	return FormatTargets, false
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Write renders the reported hits as a human-readable table.
func (th *TopHits) Write(w io.Writer, format OutputFormat, header bool) error {
	switch format {
	case FormatTargets:
		return th.writeTargets(w, header)
	case FormatDomains:
		return th.writeDomains(w, header)
	case FormatPfam:
		return th.writePfam(w, header)
	}
	return fmt.Errorf("%w: unknown output format %d", plan7.ErrInvalidParameter, format)
}

func (th *TopHits) writeTargets(w io.Writer, header bool) error {
	if header {
		if _, err := fmt.Fprintf(w, "# query: %s  mode: %s  Z: %g  domZ: %g\n",
			orDash(th.QueryName), th.Mode, th.Z, th.DomZ); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w,
			"#target\taccession\tevalue\tscore\tbias\tbest_dom_evalue\tbest_dom_score\tndom\tdescription"); err != nil {
			return err
		}
	}
	for _, h := range th.Hits {
		if !h.Reported {
			continue
		}
		best := h.BestDomain()
		bestE, bestS := 0.0, float32(0)
		if best != nil {
			bestE, bestS = best.IEvalue, best.Score
		}
		_, err := fmt.Fprintf(w, "%s\t%s\t%.2g\t%.1f\t%.1f\t%.2g\t%.1f\t%d\t%s\n",
			h.Name, orDash(h.Accession), h.Evalue, h.Score, h.Bias,
			bestE, bestS, len(h.Domains), orDash(h.Description))
		if err != nil {
			return err
		}
	}
	return nil
}

func (th *TopHits) writeDomains(w io.Writer, header bool) error {
	if header {
		if _, err := fmt.Fprintf(w, "# query: %s  mode: %s  Z: %g  domZ: %g\n",
			orDash(th.QueryName), th.Mode, th.Z, th.DomZ); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w,
			"#target\taccession\tdom\tndom\tc_evalue\ti_evalue\tscore\tbias\thmm_from\thmm_to\tenv_from\tenv_to\tdescription"); err != nil {
			return err
		}
	}
	for _, h := range th.Hits {
		if !h.Reported {
			continue
		}
		reported := h.Domains.Reported()
		for di, d := range reported {
			_, err := fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2g\t%.2g\t%.1f\t%.1f\t%d\t%d\t%d\t%d\t%s\n",
				h.Name, orDash(h.Accession), di+1, len(reported),
				d.CEvalue, d.IEvalue, d.Score, d.Bias,
				d.Alignment.HmmFrom, d.Alignment.HmmTo,
				d.EnvFrom, d.EnvTo, orDash(h.Description))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (th *TopHits) writePfam(w io.Writer, header bool) error {
	if header {
		if _, err := fmt.Fprintln(w,
			"#target\tenv_from\tenv_to\thmm_from\thmm_to\tscore\tevalue\tquery"); err != nil {
			return err
		}
	}
	for _, h := range th.Hits {
		if !h.Reported {
			continue
		}
		for _, d := range h.Domains.Reported() {
			_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f\t%.2g\t%s\n",
				h.Name, d.EnvFrom, d.EnvTo,
				d.Alignment.HmmFrom, d.Alignment.HmmTo,
				d.Score, d.IEvalue, orDash(th.QueryName))
			if err != nil {
				return err
			}
		}
	}
	return nil
}
