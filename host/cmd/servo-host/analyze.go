package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"

	"gobricks/host/analysis"
	"gobricks/host/plot"
)

func runAnalyze(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	pngPath := fs.String("png", "", "plot the log to this PNG file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("analyze needs one CSV log")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return errors.Wrap(err, "open log")
	}
	samples, err := analysis.ReadCSV(f)
	f.Close()
	if err != nil {
		return err
	}

	groups := analysis.Split(samples)
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "servo\tsamples\tduration (s)\trms error\tmax error\tmean speed\tpeak speed\toscillation\tsaturated\tstalled")
	for _, id := range ids {
		sum, err := analysis.Summarize(groups[uint8(id)])
		if err != nil {
			return errors.Wrapf(err, "servo %d", id)
		}
		fmt.Fprintf(tw, "%d\t%d\t%.3f\t%.3f\t%.3f\t%.1f\t%.1f\t%.1f Hz (%.0f%%)\t%.0f%%\t%.0f%%\n",
			sum.ID, sum.Samples, sum.Duration, sum.RMSError, sum.MaxError, sum.MeanSpeed, sum.PeakSpeed,
			sum.DominantHz, 100*sum.DominantShare, 100*sum.Saturated, 100*sum.Stalled)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if *pngPath != "" {
		return plot.SavePNG(*pngPath, samples)
	}
	return nil
}
