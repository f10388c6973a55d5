package main

import (
	"flag"
	"io"

	"github.com/caarlos0/env/v11"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/tutorial"
)

// tutorialCommand prints the script a session would run, so instructors can
// start a custom script from the stock one. It needs the config only.
func tutorialCommand(args []string, out, errOut io.Writer) error {
	var cfg CommonConfig
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	fs := flag.NewFlagSet("tutorial", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cfg.bind(fs)
	stock := fs.Bool("default", false, "print the stock script even when a custom one is configured")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_ = config.Load(cfg.ConfigDir)
	steps := tutorial.DefaultScript()
	if path := config.GetString("tutorial.scriptFile"); path != "" && !*stock {
		s, err := tutorial.LoadScriptFile(path)
		if err != nil {
			return err
		}
		steps = s
	}
	return tutorial.WriteScript(out, steps)
}
