package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/scenario"
	"github.com/stickshift/trainer/internal/worker"
)

func drillCommand(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("drill", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cfg, err := ParseDrillConfig(fs, args)
	if err != nil {
		return err
	}

	d, err := scenario.LoadDrillFile(cfg.Scenario)
	if err != nil {
		return err
	}

	a, err := setup(cfg.CommonConfig, errOut)
	if err != nil {
		return err
	}
	defer a.Close()

	tg, err := a.trainingGround()
	if err != nil {
		return err
	}
	rec, err := newRecorder(ctx, a)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			a.Logger.Error("Failed to close recorder", "error", err)
		}
	}()

	mode := scenario.AssertionStrict
	if !cfg.Assertions {
		mode = scenario.AssertionLogOnly
	}
	driver := cfg.Driver
	if driver == "" {
		driver = config.GetSessionConfig().Driver
	}
	runner, err := scenario.NewRunner(scenario.Config{
		Params:      tg.Params,
		Script:      tg.Script,
		ScriptName:  tg.ScriptName,
		DT:          cfg.DT,
		Mode:        mode,
		Driver:      driver,
		Origin:      tg.Origin,
		RecordEvery: config.GetSessionConfig().RecordEvery,
		Recorder:    rec.Worker,
		Projector:   tg.Course,
		Logger:      a.Logger,
		LogCtx:      a.LogCtx,
		Started:     rec.Attach,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	res, runErr := runner.Run(ctx, d)
	if res == nil {
		return runErr
	}

	finishErr := rec.Finish(context.Background(), res.Summary)
	if errors.Is(finishErr, worker.ErrNotStarted) {
		// The backend refused the session; runErr already says why.
		finishErr = nil
	}
	printResult(out, res)
	return errors.Join(runErr, finishErr)
}

func printResult(w io.Writer, res *scenario.Result) {
	fmt.Fprintf(w, "drill %q: %d frames, %.2fs, %.1f m, max %.1f km/h, %d stalls, step %d/%d\n",
		res.Drill, res.Frames, res.Summary.Duration.Seconds(), res.Summary.Distance,
		res.Summary.MaxSpeed, res.Summary.Stalls, res.Summary.StepsReached, res.Summary.TutorialSteps)
	if len(res.Expectations) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tEXPECT\tWANT\tGOT\tAT\tRESULT")
	for _, o := range res.Expectations {
		verdict := "ok"
		if !o.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2fs\t%s\n", o.Index+1, o.Kind, o.Want, o.Got, o.Elapsed.Seconds(), verdict)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d/%d expectations held\n", len(res.Expectations)-res.Failed(), len(res.Expectations))
}
