// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// graphrun loads a graph in the FlatGraph format, executes it and reports its outputs, layering,
// timings and profile.
//
// Usage:
//
//	graphrun [flags] <graph file>
//
// The executioner is configured with -config (see exec.ParseConfig), or with $DL4J_EXECUTIONER.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/zwb12580/deeplearning4j/pkg/exec"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/graph/flat"
	_ "github.com/zwb12580/deeplearning4j/pkg/ops/builtin"
	"github.com/zwb12580/deeplearning4j/pkg/status"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "",
		"Executioner configuration, e.g. \"threads=4,iterations=1000,seed=7,deadline=10s,workspace=64MiB\". "+
			"Settings not given are taken from $"+exec.DL4J_EXECUTIONER+".")
	flagRuns    = flag.Int("runs", 1, "Number of executions. Timings are summarized over all of them.")
	flagLayers  = flag.Bool("layers", false, "Display the layering of the graph.")
	flagOutputs = flag.Bool("outputs", true, "Display the outputs of the last execution.")
	flagValues  = flag.Int("values", 8, "Maximum number of values displayed per output, 0 for all.")
	flagProfile = flag.Int("profile", -1,
		"Profile the last execution and display its N slowest nodes (0 for all). Negative disables profiling.")
	flagNoColor = flag.Bool("no_color", false, "Disable colors in the reports.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one graph file. See 'graphrun -help'.")
		os.Exit(1)
	}
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := run(ctx, args[0]); err != nil {
		klog.Errorf("graphrun failed with status %s: %+v", status.CodeOf(err), err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	g, err := flat.Import(path)
	if err != nil {
		return err
	}
	options, err := exec.ParseConfig(*flagConfig)
	if err != nil {
		return errors.WithMessage(err, "-config")
	}
	fmt.Println(titleStyle.Render("Graph"))
	fmt.Println(summaryTable(path, g).Render())
	if *flagLayers {
		fmt.Println(titleStyle.Render("Layers"))
		fmt.Println(layersTable(g).Render())
	}

	result, elapsed, err := executeRuns(ctx, g, options, max(*flagRuns, 1))
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render("Timings"))
	fmt.Println(timingsTable(elapsed, result.WorkspacePeak).Render())
	if *flagOutputs {
		fmt.Println(titleStyle.Render("Outputs"))
		fmt.Println(outputsTable(result.Outputs, *flagValues).Render())
	}
	if result.Profile != nil {
		fmt.Println(titleStyle.Render("Profile"))
		fmt.Println(profileTable(result.Profile, *flagProfile).Render())
	}
	return nil
}

// executeRuns executes the graph numRuns times, and returns the result of the last execution and the
// elapsed time of each one. Only the last execution is profiled.
func executeRuns(ctx context.Context, g *graph.Graph, options []exec.Option, numRuns int) (*exec.Result, []time.Duration, error) {
	var bar *progressbar.ProgressBar
	if numRuns > 1 {
		bar = progressbar.NewOptions(numRuns,
			progressbar.OptionSetDescription("executing"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("runs"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish())
	}
	var result *exec.Result
	elapsed := make([]time.Duration, 0, numRuns)
	for i := range numRuns {
		runOptions := options
		if i == numRuns-1 && *flagProfile >= 0 {
			runOptions = append(runOptions[:len(runOptions):len(runOptions)], exec.WithProfiling())
		}
		var err error
		result, err = exec.Run(ctx, g, runOptions...)
		if err != nil {
			if result != nil {
				return nil, nil, errors.WithMessagef(err, "execution %d (%s)", i, result.RunID)
			}
			return nil, nil, err
		}
		elapsed = append(elapsed, result.Elapsed)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return result, elapsed, nil
}
