// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"fmt"
	"strings"

	"github.com/GermanBionicSystems/stepper/logger"
)

// GConf is the decoded GCONF register.
type GConf struct {
	IScaleAnalog    bool
	InternalRSense  bool
	SpreadCycle     bool
	Shaft           bool
	IndexOTPW       bool
	IndexStep       bool
	PDNDisable      bool
	MStepRegSelect  bool
	MultistepFilter bool
	TestMode        bool
}

func decodeGConf(v uint32) GConf {
	return GConf{
		IScaleAnalog:    GConfIScaleAnalog.IsSet(v),
		InternalRSense:  GConfInternalRSense.IsSet(v),
		SpreadCycle:     GConfEnSpreadCycle.IsSet(v),
		Shaft:           GConfShaft.IsSet(v),
		IndexOTPW:       GConfIndexOTPW.IsSet(v),
		IndexStep:       GConfIndexStep.IsSet(v),
		PDNDisable:      GConfPDNDisable.IsSet(v),
		MStepRegSelect:  GConfMStepRegSelect.IsSet(v),
		MultistepFilter: GConfMultistepFilt.IsSet(v),
		TestMode:        GConfTestMode.IsSet(v),
	}
}

func (g GConf) String() string {
	return fmt.Sprintf("GCONF{i_scale_analog:%t internal_rsense:%t spreadcycle:%t shaft:%t index_otpw:%t index_step:%t pdn_disable:%t mstep_reg_select:%t multistep_filt:%t test_mode:%t}",
		g.IScaleAnalog, g.InternalRSense, g.SpreadCycle, g.Shaft, g.IndexOTPW,
		g.IndexStep, g.PDNDisable, g.MStepRegSelect, g.MultistepFilter, g.TestMode)
}

func (g GConf) report(l logger.Logger) {
	if g.IScaleAnalog {
		l.Info("driver uses voltage supplied to VREF as current reference")
	} else {
		l.Info("driver uses internal reference derived from 5VOUT")
	}
	if g.InternalRSense {
		l.Warn("driver uses internal sense resistors")
	} else {
		l.Info("driver uses external sense resistors")
	}
	if g.SpreadCycle {
		l.Info("driver operates in spreadCycle mode")
	} else {
		l.Info("driver operates in stealthChop mode")
	}
	l.Info("motor direction", "inverted", g.Shaft)
	if g.IndexOTPW {
		l.Info("INDEX pin shows overtemperature prewarning")
	} else {
		l.Info("INDEX pin shows first microstep position of sequencer")
	}
	if g.IndexStep {
		l.Info("INDEX output shows step pulses from internal pulse generator")
	}
	l.Info("PDN_UART input function", "disabled", g.PDNDisable)
	if g.MStepRegSelect {
		l.Info("microstep resolution selected by MSTEP register")
	} else {
		l.Info("microstep resolution selected by pins MS1, MS2")
	}
	l.Info("STEP pulse filter", "enabled", g.MultistepFilter)
	if g.TestMode {
		l.Warn("test mode enabled")
	}
}

// GStat is the decoded GSTAT register. Its flags are sticky until cleared.
type GStat struct {
	Reset        bool
	DriverError  bool
	UnderVoltage bool
}

func decodeGStat(v uint32) GStat {
	return GStat{
		Reset:        GStatReset.IsSet(v),
		DriverError:  GStatDrvErr.IsSet(v),
		UnderVoltage: GStatUVCP.IsSet(v),
	}
}

func (g GStat) String() string {
	return fmt.Sprintf("GSTAT{reset:%t drv_err:%t uv_cp:%t}", g.Reset, g.DriverError, g.UnderVoltage)
}

func (g GStat) report(l logger.Logger) {
	if g.Reset {
		l.Info("driver has been reset since last GSTAT clear")
	}
	if g.DriverError {
		l.Error("driver has been shut down due to overtemperature or short circuit")
	}
	if g.UnderVoltage {
		l.Error("undervoltage on charge pump, driver disabled")
	}
}

// InputPins is the decoded IOIN register.
type InputPins struct {
	Enn      bool
	MS1      bool
	MS2      bool
	Diag     bool
	PDNUART  bool
	Step     bool
	SpreadEn bool
	Dir      bool
	Version  uint8
}

func decodeInputPins(v uint32) InputPins {
	return InputPins{
		Enn:      IOINEnn.IsSet(v),
		MS1:      IOINMS1.IsSet(v),
		MS2:      IOINMS2.IsSet(v),
		Diag:     IOINDiag.IsSet(v),
		PDNUART:  IOINPDNUART.IsSet(v),
		Step:     IOINStep.IsSet(v),
		SpreadEn: IOINSpreadEn.IsSet(v),
		Dir:      IOINDir.IsSet(v),
		Version:  uint8(IOINVersion.Get(v)),
	}
}

func (p InputPins) String() string {
	return fmt.Sprintf("IOIN{enn:%t ms1:%t ms2:%t diag:%t pdn_uart:%t step:%t spread_en:%t dir:%t version:%#02x}",
		p.Enn, p.MS1, p.MS2, p.Diag, p.PDNUART, p.Step, p.SpreadEn, p.Dir, p.Version)
}

func (p InputPins) report(l logger.Logger) {
	l.Info("input pins",
		"enn", p.Enn, "ms1", p.MS1, "ms2", p.MS2, "diag", p.Diag,
		"pdn_uart", p.PDNUART, "step", p.Step, "spread_en", p.SpreadEn,
		"dir", p.Dir, "version", p.Version)
	if p.Enn {
		l.Warn("ENN pin is high, motor outputs disabled")
	}
}

// ChopConf is the decoded CHOPCONF register.
type ChopConf struct {
	TOff          uint8
	HStart        uint8
	HEnd          uint8
	TBL           uint8
	VSense        bool
	Microsteps    MicrostepResolution
	Interpolation bool
	DoubleEdge    bool
	DisableS2G    bool
	DisableS2VS   bool
}

func decodeChopConf(v uint32) ChopConf {
	return ChopConf{
		TOff:          uint8(ChopConfTOff.Get(v)),
		HStart:        uint8(ChopConfHStrt.Get(v)),
		HEnd:          uint8(ChopConfHEnd.Get(v)),
		TBL:           uint8(ChopConfTBL.Get(v)),
		VSense:        ChopConfVSense.IsSet(v),
		Microsteps:    microstepsFromMRES(ChopConfMRES.Get(v)),
		Interpolation: ChopConfIntPol.IsSet(v),
		DoubleEdge:    ChopConfDEdge.IsSet(v),
		DisableS2G:    ChopConfDiss2G.IsSet(v),
		DisableS2VS:   ChopConfDiss2VS.IsSet(v),
	}
}

func (c ChopConf) String() string {
	return fmt.Sprintf("CHOPCONF{toff:%d hstrt:%d hend:%d tbl:%d vsense:%t microsteps:%d intpol:%t dedge:%t diss2g:%t diss2vs:%t}",
		c.TOff, c.HStart, c.HEnd, c.TBL, c.VSense, c.Microsteps, c.Interpolation,
		c.DoubleEdge, c.DisableS2G, c.DisableS2VS)
}

func (c ChopConf) report(l logger.Logger) {
	l.Info("microstep resolution", "microsteps", c.Microsteps)
	if c.VSense {
		l.Info("driver is in high sensitivity, low sense resistor voltage mode")
	} else {
		l.Info("driver is in low sensitivity, high sense resistor voltage mode")
	}
	l.Info("interpolation to 256 microsteps", "enabled", c.Interpolation)
	l.Info("step on both edges", "enabled", c.DoubleEdge)
	if c.TOff == 0 {
		l.Warn("chopper off time is zero, driver disabled")
	}
	if c.DisableS2G || c.DisableS2VS {
		l.Warn("short protection disabled", "to_ground", c.DisableS2G, "to_supply", c.DisableS2VS)
	}
}

// DriverStatus is the decoded DRV_STATUS register.
type DriverStatus struct {
	OverTempWarning bool
	OverTemp        bool
	ShortGroundA    bool
	ShortGroundB    bool
	ShortSupplyA    bool
	ShortSupplyB    bool
	OpenLoadA       bool
	OpenLoadB       bool
	Temp120         bool
	Temp143         bool
	Temp150         bool
	Temp157         bool
	CurrentScale    uint8
	StealthChop     bool
	Standstill      bool
}

func decodeDriverStatus(v uint32) DriverStatus {
	return DriverStatus{
		OverTempWarning: DrvStatusOTPW.IsSet(v),
		OverTemp:        DrvStatusOT.IsSet(v),
		ShortGroundA:    DrvStatusS2GA.IsSet(v),
		ShortGroundB:    DrvStatusS2GB.IsSet(v),
		ShortSupplyA:    DrvStatusS2VSA.IsSet(v),
		ShortSupplyB:    DrvStatusS2VSB.IsSet(v),
		OpenLoadA:       DrvStatusOLA.IsSet(v),
		OpenLoadB:       DrvStatusOLB.IsSet(v),
		Temp120:         DrvStatusT120.IsSet(v),
		Temp143:         DrvStatusT143.IsSet(v),
		Temp150:         DrvStatusT150.IsSet(v),
		Temp157:         DrvStatusT157.IsSet(v),
		CurrentScale:    uint8(DrvStatusCSActual.Get(v)),
		StealthChop:     DrvStatusStealth.IsSet(v),
		Standstill:      DrvStatusStSt.IsSet(v),
	}
}

// Faults returns the names of the set error flags.
func (s DriverStatus) Faults() []string {
	var out []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{s.OverTemp, "overtemperature"},
		{s.ShortGroundA, "short to ground on phase A"},
		{s.ShortGroundB, "short to ground on phase B"},
		{s.ShortSupplyA, "low side short on phase A"},
		{s.ShortSupplyB, "low side short on phase B"},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}

func (s DriverStatus) String() string {
	var b strings.Builder
	b.WriteString("DRV_STATUS{")
	fmt.Fprintf(&b, "otpw:%t ot:%t s2ga:%t s2gb:%t s2vsa:%t s2vsb:%t ola:%t olb:%t ",
		s.OverTempWarning, s.OverTemp, s.ShortGroundA, s.ShortGroundB,
		s.ShortSupplyA, s.ShortSupplyB, s.OpenLoadA, s.OpenLoadB)
	fmt.Fprintf(&b, "t120:%t t143:%t t150:%t t157:%t cs_actual:%d stealth:%t stst:%t}",
		s.Temp120, s.Temp143, s.Temp150, s.Temp157, s.CurrentScale, s.StealthChop, s.Standstill)
	return b.String()
}

func (s DriverStatus) report(l logger.Logger) {
	if s.Standstill {
		l.Info("motor standstill")
	} else {
		l.Info("motor is moving")
	}
	if s.StealthChop {
		l.Info("motor runs in stealthChop mode")
	} else {
		l.Info("motor runs in spreadCycle mode")
	}
	l.Info("actual current scale", "cs_actual", s.CurrentScale)
	for _, fault := range s.Faults() {
		l.Error("driver fault", "fault", fault)
	}
	if s.OverTempWarning {
		l.Warn("driver overtemperature prewarning")
	}
	if s.OpenLoadA {
		l.Warn("open load detected on phase A")
	}
	if s.OpenLoadB {
		l.Warn("open load detected on phase B")
	}
	switch {
	case s.Temp157:
		l.Warn("temperature threshold exceeded", "celsius", 157)
	case s.Temp150:
		l.Warn("temperature threshold exceeded", "celsius", 150)
	case s.Temp143:
		l.Warn("temperature threshold exceeded", "celsius", 143)
	case s.Temp120:
		l.Warn("temperature threshold exceeded", "celsius", 120)
	}
}
