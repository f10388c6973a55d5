package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/geo"
	"github.com/stickshift/trainer/internal/logging"
	intOtel "github.com/stickshift/trainer/internal/otel"
	"github.com/stickshift/trainer/internal/tutorial"
	"github.com/stickshift/trainer/internal/vehicle"
	"github.com/stickshift/trainer/pkg/core"
)

// app is the process-wide plumbing a command runs inside.
type app struct {
	Logger      *slog.Logger
	Zerolog     zerolog.Logger
	SlogManager *logging.SlogManager
	LogCtx      *logging.SessionContext
	OTel        *intOtel.Provider

	StartTime   time.Time
	LogFilePath string
	logFile     *os.File
	closers     []io.Closer
}

// setup loads the config and brings up logging. A missing config file is
// not fatal; every setting has a default.
func setup(common CommonConfig, errOut io.Writer) (*app, error) {
	a := &app{
		SlogManager: logging.NewSlogManager(),
		LogCtx:      logging.NewSessionContext(),
		StartTime:   time.Now(),
	}

	configErr := config.Load(common.ConfigDir)
	level := config.GetString("logLevel")
	if common.Verbose {
		level = "debug"
	}

	var logOut io.Writer = errOut
	if dir := config.GetString("logsDir"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating logs directory: %w", err)
		}
		a.LogFilePath = logging.LogFilePath(dir, AppName, a.StartTime)
		f, err := os.OpenFile(a.LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		a.logFile = f
		logOut = f
	}

	otelCfg := config.GetOTelConfig()
	var err error
	a.OTel, err = intOtel.New(intOtel.FromConfig(otelCfg, logOut))
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize OTel provider: %v\n", err)
		a.OTel, _ = intOtel.New(intOtel.Config{})
	}
	var otelLogProvider *sdklog.LoggerProvider
	if a.OTel.Enabled() {
		otelLogProvider = a.OTel.LoggerProvider()
	}

	opts := []logging.SetupOption{logging.WithContext(a.LogCtx.Attrs)}
	gl := config.GetGraylogConfig()
	if gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address)
		if err != nil {
			fmt.Fprintf(errOut, "graylog disabled: %v\n", err)
		} else {
			opts = append(opts, logging.WithGELF(w), logging.WithFacility(gl.Facility))
			a.closers = append(a.closers, w)
		}
	}

	a.SlogManager.Setup(logOut, level, otelLogProvider, opts...)
	a.Logger = a.SlogManager.Logger()
	slog.SetDefault(a.Logger)
	a.Zerolog = logging.NewZerolog(logOut, level)

	if configErr != nil {
		a.Logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		a.Logger.Info("Loaded config", "dir", common.ConfigDir)
	}
	if a.LogFilePath != "" {
		a.Logger.Info("Logging to file", "path", a.LogFilePath)
	}
	return a, nil
}

// Close flushes the log pipeline. Safe on a partially built app.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := a.SlogManager.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.OTel != nil {
		if err := a.OTel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// trainingGround is what a session needs from the config besides the car.
type trainingGround struct {
	Params     vehicle.Params
	Script     []tutorial.Step
	ScriptName string
	Origin     core.Position2D
	Course     *geo.Course
}

func (a *app) trainingGround() (trainingGround, error) {
	var tg trainingGround

	params, err := config.GetPhysicsParams()
	if err != nil {
		return tg, err
	}
	tg.Params = params

	tg.Script = tutorial.DefaultScript()
	tg.ScriptName = "default"
	if path := config.GetString("tutorial.scriptFile"); path != "" {
		steps, err := tutorial.LoadScriptFile(path)
		if err != nil {
			return tg, fmt.Errorf("tutorial script: %w", err)
		}
		tg.Script = steps
		tg.ScriptName = filepath.Base(path)
	}

	g := config.GetGeoConfig()
	tg.Origin = core.Position2D{X: g.OriginLon, Y: g.OriginLat}
	tg.Course = geo.NewCourse(g.OriginLon, g.OriginLat)
	return tg, nil
}
