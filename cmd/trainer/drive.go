package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/dispatcher"
	"github.com/stickshift/trainer/internal/logging"
	"github.com/stickshift/trainer/internal/session"
)

const (
	// CmdQuit ends a drive session before the input runs out.
	CmdQuit = ":QUIT:"
	// CmdLog writes a front end message to the trainer log: ":LOG: warn text".
	CmdLog = ":LOG:"
)

// reply is one line of drive output.
type reply struct {
	Line    int    `json:"line"`
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func driveCommand(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("drive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cfg, err := ParseDriveConfig(fs, args)
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

	sc := config.GetSessionConfig()
	driver := cfg.Driver
	if driver == "" {
		driver = sc.Driver
	}
	s, err := session.New(session.Config{
		Params:      tg.Params,
		Script:      tg.Script,
		ScriptName:  tg.ScriptName,
		MaxFrameDt:  sc.MaxFrameDt,
		RecordEvery: sc.RecordEvery,
		Driver:      driver,
		Source:      "stdin",
		TickRate:    sc.TickRate,
		Origin:      tg.Origin,
		Recorder:    rec.Worker,
		Projector:   tg.Course,
		Logger:      a.Logger,
		LogCtx:      a.LogCtx,
	})
	if err != nil {
		return err
	}
	if err := rec.Attach(s); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.Logger))
	if err != nil {
		return err
	}
	session.RegisterHandlers(d, s)
	if b, err := config.GetBindings(); err != nil {
		a.Logger.Warn("Key bindings unusable, raw key commands disabled", "error", err)
	} else {
		session.RegisterKeyHandlers(d, s, b)
	}
	rec.Worker.RegisterHandlers(d)
	registerLogHandler(d, a.SlogManager)
	a.Logger.Debug("drive ready", "commands", d.Commands())

	loopErr := drive(ctx, d, in, out, cfg.Echo)
	d.Close()

	sum := s.End()
	if err := rec.Finish(context.Background(), sum); err != nil {
		return errors.Join(loopErr, err)
	}
	a.Logger.Info("drive done", "frames", sum.Frames, "completed", sum.Completed)
	return loopErr
}

func registerLogHandler(d *dispatcher.Dispatcher, m *logging.SlogManager) {
	d.Register(CmdLog, func(e dispatcher.Event) (any, error) {
		if len(e.Args) < 2 {
			return nil, errors.New("log: want level message")
		}
		m.WriteLog(e.Source, strings.Join(e.Args[1:], " "), e.Args[0])
		return nil, nil
	})
}

// drive dispatches each input line until EOF, :QUIT:, a quit key or
// cancellation. Handler errors are reported inline and do not stop the loop.
func drive(ctx context.Context, d *dispatcher.Dispatcher, in io.Reader, out io.Writer, echo bool) error {
	enc := json.NewEncoder(out)
	sc := bufio.NewScanner(in)
	line := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		cmd := strings.ToUpper(fields[0])
		if cmd == CmdQuit {
			return nil
		}

		r := reply{Line: line, Command: cmd}
		if !d.HasHandler(cmd) {
			r.Error = fmt.Sprintf("unknown command %q", cmd)
		} else {
			res, err := d.Dispatch(dispatcher.Event{
				Command:   cmd,
				Args:      fields[1:],
				Source:    "stdin",
				Timestamp: time.Now(),
			})
			if errors.Is(err, session.ErrQuit) {
				return nil
			}
			if err != nil {
				r.Error = err.Error()
			} else {
				r.Result = res
			}
		}
		if cmd == session.CmdTick && r.Error == "" && !echo {
			continue
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return sc.Err()
}
