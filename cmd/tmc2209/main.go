// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// tmc2209 configures a TMC2209 stepper driver over UART and moves the motor
// forth and back.
//
// Usage:
//
//	tmc2209 [-v] [-report] [-log-level LEVEL] [-port DEVICE] [-baud BAUD] [-node N]
//	    [-step PIN] [-enable PIN] [-dir PIN] [-current 300mA]
//	    [-microsteps 16] [-steps N] [-interval 2ms]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/stepper/logger"
	"github.com/GermanBionicSystems/stepper/serialbus"
	"github.com/GermanBionicSystems/stepper/tmc2209"
)

const usage = `usage: tmc2209 [-v] [-report] [-log-level LEVEL] [-port DEVICE] [-baud BAUD] [-node N]
	[-step PIN] [-enable PIN] [-dir PIN] [-current CURRENT]
	[-microsteps N] [-steps N] [-interval DURATION]`

type config struct {
	port       string
	baud       int
	node       uint8
	step       string
	enable     string
	dir        string
	current    physic.ElectricCurrent
	microsteps tmc2209.MicrostepResolution
	steps      int32
	interval   time.Duration
	level      logger.Level
	report     bool
}

func parseArgs(args []string) (*config, error) {
	flag, args := flags.New(args, "-v", "-report", "-h", "-help")
	parm, args := parms.New(args, "-port", "-baud", "-node", "-step", "-enable",
		"-dir", "-current", "-microsteps", "-steps", "-interval", "-log-level")
	if flag.ByName["-h"] || flag.ByName["-help"] {
		return nil, errors.New(usage)
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("unexpected argument %q\n%s", args[0], usage)
	}
	c := &config{
		port:       "/dev/serial0",
		baud:       115200,
		step:       "GPIO16",
		enable:     "GPIO21",
		dir:        "GPIO20",
		current:    300 * physic.MilliAmpere,
		microsteps: tmc2209.Microsteps16,
		steps:      1600,
		interval:   tmc2209.DefaultStepInterval,
		level:      logger.InfoLevel,
		report:     flag.ByName["-report"],
	}
	if flag.ByName["-v"] {
		c.level = logger.DebugLevel
	}
	if s := parm.ByName["-log-level"]; len(s) > 0 {
		l, ok := logger.ParseLevel(s)
		if !ok {
			return nil, fmt.Errorf("-log-level: unknown level %q", s)
		}
		c.level = l
	}
	for name, dst := range map[string]*string{"-port": &c.port, "-step": &c.step, "-enable": &c.enable, "-dir": &c.dir} {
		if s := parm.ByName[name]; len(s) > 0 {
			*dst = s
		}
	}
	if s := parm.ByName["-baud"]; len(s) > 0 {
		if _, err := fmt.Sscan(s, &c.baud); err != nil {
			return nil, fmt.Errorf("-baud: %w", err)
		}
	}
	if s := parm.ByName["-node"]; len(s) > 0 {
		if _, err := fmt.Sscan(s, &c.node); err != nil {
			return nil, fmt.Errorf("-node: %w", err)
		}
	}
	if s := parm.ByName["-current"]; len(s) > 0 {
		if err := c.current.Set(s); err != nil {
			return nil, fmt.Errorf("-current: %w", err)
		}
	}
	if s := parm.ByName["-microsteps"]; len(s) > 0 {
		if _, err := fmt.Sscan(s, &c.microsteps); err != nil {
			return nil, fmt.Errorf("-microsteps: %w", err)
		}
	}
	if s := parm.ByName["-steps"]; len(s) > 0 {
		if _, err := fmt.Sscan(s, &c.steps); err != nil {
			return nil, fmt.Errorf("-steps: %w", err)
		}
	}
	if s := parm.ByName["-interval"]; len(s) > 0 {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("-interval: %w", err)
		}
		c.interval = d
	}
	return c, nil
}

func pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("invalid pin %q", name)
	}
	return p, nil
}

func configure(ctx context.Context, dev *tmc2209.Dev, c *config) error {
	if _, err := dev.CheckGConf(ctx); err != nil {
		return err
	}
	if err := dev.ClearGStat(ctx); err != nil {
		return err
	}
	for _, o := range []tmc2209.GConfOption{tmc2209.PDNDisable, tmc2209.MStepRegSelect} {
		if err := dev.EnableGConf(ctx, o); err != nil {
			return err
		}
	}
	if err := dev.EnableChopConf(ctx, tmc2209.Interpolation); err != nil {
		return err
	}
	if err := dev.SetMicrostepResolution(ctx, c.microsteps); err != nil {
		return err
	}
	return dev.SetCurrent(ctx, c.current)
}

func mainImpl() error {
	c, err := parseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	log := logger.NewSlog(c.level, false)
	logger.SetDefault(log)

	if _, err := host.Init(); err != nil {
		log.Fatal("failed to initialize periph", "err", err)
	}
	step, err := pin(c.step)
	if err != nil {
		return err
	}
	enable, err := pin(c.enable)
	if err != nil {
		return err
	}
	dir, err := pin(c.dir)
	if err != nil {
		return err
	}

	cfg := serialbus.DefaultConfig(c.port)
	cfg.Baud = c.baud
	port, err := serialbus.Open(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	opts := tmc2209.DefaultBusOpts
	opts.SettleDelay = port.SettleDelay()
	opts.Logger = log
	bus, err := tmc2209.NewBus(port, &opts)
	if err != nil {
		return err
	}
	defer bus.Close()

	devOpts := tmc2209.DefaultOpts
	devOpts.Node = c.node
	devOpts.Step = step
	devOpts.Dir = dir
	devOpts.Enable = enable
	devOpts.Logger = log
	dev, err := tmc2209.New(bus, &devOpts)
	if err != nil {
		return err
	}
	defer dev.Halt()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if c.report {
		return dev.Report(ctx)
	}
	if err := configure(ctx, dev, c); err != nil {
		return err
	}
	if err := dev.SetMotorEnabled(true); err != nil {
		return err
	}
	start := time.Now()
	if err := dev.MoveSteps(ctx, c.steps, c.interval); err != nil {
		return err
	}
	if err := dev.MoveTo(ctx, 0, c.interval); err != nil {
		return err
	}
	log.Info("move done", "steps", 2*c.steps, "duration", time.Since(start).Round(time.Millisecond), "position", dev.Position())
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "tmc2209: %s.\n", err)
		os.Exit(1)
	}
}
