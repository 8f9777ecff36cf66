package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/bartekpacia/myfox/api"
	"github.com/bartekpacia/myfox/highlevel"
	"github.com/urfave/cli/v2"
)

func connect(c *cli.Context) (api.Wrapper, error) {
	err := highlevel.PromptPassword(config, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}

	w, err := highlevel.Connect(c.Context, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	err = highlevel.SeedState(w.State(), config)
	if err != nil {
		return nil, err
	}
	return w, nil
}

var macroFlags = []cli.Flag{
	&cli.DurationFlag{
		Name:  "delay",
		Usage: "postpone the first action",
	},
	&cli.StringSliceFlag{
		Name:  "then",
		Usage: "run `id:action[:delay]` after the previous action, can be repeated",
	},
}

// commandSteps reads "<id> <action>" and the macro flags.
func commandSteps(c *cli.Context, resolve func(string) (int, error)) ([]step, error) {
	if c.NArg() != 2 {
		return nil, fmt.Errorf("expected <id> <action>, got %d arguments", c.NArg())
	}

	id, err := resolve(c.Args().Get(0))
	if err != nil {
		return nil, err
	}

	steps := []step{{
		ID:      id,
		Action:  c.Args().Get(1),
		DelayMS: int(c.Duration("delay").Milliseconds()),
	}}

	for _, s := range c.StringSlice("then") {
		st, err := parseStep(s, resolve)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}

	return steps, nil
}

func split[A any](steps []step, convert func(step) A) (A, []A) {
	actions := make([]A, 0, len(steps))
	for _, s := range steps {
		actions = append(actions, convert(s))
	}
	return actions[0], actions[1:]
}

var homeCommand = cli.Command{
	Name:  "home",
	Usage: "Show the site and its status",
	Action: func(c *cli.Context) error {
		w, err := connect(c)
		if err != nil {
			return err
		}

		value, ok := w.State().Get(api.LabelStatus)
		if !ok {
			return fmt.Errorf("home status is not available with strategy %s", w.Options().APIStrategy)
		}

		home := value.(api.Home)
		fmt.Printf("site: %s\n", home.SiteName)
		for _, status := range home.MasterStatus {
			fmt.Printf("\t%s\n", status)
		}
		return nil
	},
}

var stateCommand = cli.Command{
	Name:  "state",
	Usage: "Print the tracked state after reading the home page",
	Action: func(c *cli.Context) error {
		w, err := connect(c)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "\t")
		return enc.Encode(w.State().Snapshot())
	},
}

var scenarioCommand = cli.Command{
	Name:      "scenario",
	Aliases:   []string{"s"},
	Usage:     "Play, enable or disable scenarios",
	ArgsUsage: "<id|name> <on|off|play>",
	Flags:     macroFlags,
	Action: func(c *cli.Context) error {
		steps, err := commandSteps(c, scenarioResolver(config.Scenarios))
		if err != nil {
			return err
		}

		w, err := connect(c)
		if err != nil {
			return err
		}

		first, next := split(steps, func(s step) api.ScenarioAction {
			return api.ScenarioAction{ID: s.ID, Action: s.Action, DelayMS: s.DelayMS}
		})
		return runMacro(c.Context, w, steps, func(done api.CompletionFunc, macroID string) error {
			return w.CallScenarioAction(c.Context, first, done, macroID, next...)
		})
	},
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List scenario names from the config",
			Action: func(c *cli.Context) error {
				names := make([]string, 0, len(config.Scenarios))
				for name := range config.Scenarios {
					names = append(names, name)
				}
				slices.Sort(names)

				w := tabwriter.NewWriter(os.Stdout, 8, 8, 0, ' ', 0)
				defer w.Flush()

				fmt.Fprintf(w, "id\tname\n")
				for _, name := range names {
					fmt.Fprintf(w, "%d\t%s\n", config.Scenarios[name], name)
				}
				return nil
			},
		},
	},
}

var domoticCommand = cli.Command{
	Name:      "domotic",
	Aliases:   []string{"d"},
	Usage:     "Switch domotic devices",
	ArgsUsage: "<id> <on|off>",
	Flags:     macroFlags,
	Action: func(c *cli.Context) error {
		steps, err := commandSteps(c, api.ParseActionID)
		if err != nil {
			return err
		}

		w, err := connect(c)
		if err != nil {
			return err
		}

		first, next := split(steps, func(s step) api.DomoticAction {
			return api.DomoticAction{ID: s.ID, Action: s.Action, DelayMS: s.DelayMS}
		})
		return runMacro(c.Context, w, steps, func(done api.CompletionFunc, macroID string) error {
			return w.CallDomoticAction(c.Context, first, done, macroID, next...)
		})
	},
}

var heatingCommand = cli.Command{
	Name:      "heating",
	Aliases:   []string{"h"},
	Usage:     "Change the mode of heatings",
	ArgsUsage: "<id> <on|eco|frost|off>",
	Flags:     macroFlags,
	Action: func(c *cli.Context) error {
		steps, err := commandSteps(c, api.ParseActionID)
		if err != nil {
			return err
		}

		w, err := connect(c)
		if err != nil {
			return err
		}

		first, next := split(steps, func(s step) api.HeatingAction {
			return api.HeatingAction{ID: s.ID, Action: s.Action, DelayMS: s.DelayMS}
		})
		return runMacro(c.Context, w, steps, func(done api.CompletionFunc, macroID string) error {
			return w.CallHeatingAction(c.Context, first, done, macroID, next...)
		})
	},
}

var alarmCommand = cli.Command{
	Name:      "alarm",
	Aliases:   []string{"a"},
	Usage:     "Change the security level",
	ArgsUsage: "<on|half|off>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "password",
			Usage: "account password, required to lower the level (default: configured password)",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected <on|half|off>, got %d arguments", c.NArg())
		}

		w, err := connect(c)
		if err != nil {
			return err
		}

		password := c.String("password")
		if password == "" && c.Args().First() != api.ActionOn {
			password = config.Password
		}

		result := make(chan error, 1)
		err = w.CallAlarmLevelAction(c.Context, api.AlarmAction{Action: c.Args().First(), Password: password}, func(err error, ev api.MacroEvent) {
			result <- err
		})
		if err != nil {
			return err
		}

		select {
		case err := <-result:
			if errors.Is(err, api.ErrAlarmPassword) {
				return fmt.Errorf("wrong password")
			}
			return err
		case <-c.Context.Done():
			return c.Context.Err()
		}
	},
}
