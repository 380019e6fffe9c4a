package main

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/plan"
)

func main() {
	schedCmd := &cli.Command{
		Name:        "sched",
		Description: "run scheduling plans and print the outcome of every entity",
		Action:      schedAct,
		Args:        cli.Args{},
	}

	dumpCmd := &cli.Command{
		Name:        "dump",
		Description: "run scheduling plans and dump the outcome as yaml",
		Action:      dumpAct,
		Args:        cli.Args{},
	}

	checkCmd := &cli.Command{
		Name:        "check",
		Description: "validate scheduling plans",
		Action:      checkAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "ryu",
		Description: "ryu drives the compile time scheduler",
		Commands: []*cli.Command{
			schedCmd,
			dumpCmd,
			checkCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func schedAct(c *cli.Command) (err error) {
	return runPlans(c, func(name string, r *plan.Report) error {
		b := []byte(name + ":\n")
		b = r.AppendText(b)

		_, err := os.Stdout.Write(b)

		return err
	})
}

func dumpAct(c *cli.Command) (err error) {
	enc := yaml.NewEncoder(os.Stdout)
	defer func() {
		e := enc.Close()
		if err == nil {
			err = e
		}
	}()

	return runPlans(c, func(name string, r *plan.Report) error {
		return enc.Encode(r)
	})
}

func checkAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		p, err := plan.Load(a)
		if err != nil {
			return err
		}

		tlog.SpanFromContext(ctx).Printw("plan ok", "name", a, "entities", len(p.Entities))
	}

	return nil
}

func runPlans(c *cli.Command, out func(name string, r *plan.Report) error) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	var failed error

	for _, a := range c.Args {
		p, err := plan.Load(a)
		if err != nil {
			return err
		}

		r, err := p.Run(ctx)
		if err != nil {
			return errors.Wrap(err, "run %v", a)
		}

		err = out(a, r)
		if err != nil {
			return errors.Wrap(err, "write")
		}

		if r.Err != nil && failed == nil {
			failed = errors.Wrap(r.Err, "%v", a)
		}
	}

	return failed
}
