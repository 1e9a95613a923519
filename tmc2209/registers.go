// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"fmt"
	"math/bits"

	"github.com/GermanBionicSystems/stepper/common"
)

// Register is a TMC2209 register address. See the "Register map" section of
// the datasheet.
type Register uint8

const (
	GCONF      Register = 0x00
	GSTAT      Register = 0x01
	IFCNT      Register = 0x02
	SLAVECONF  Register = 0x03
	OTPREAD    Register = 0x05
	IOIN       Register = 0x06
	IHOLDIRUN  Register = 0x10
	TPOWERDOWN Register = 0x11
	TSTEP      Register = 0x12
	TPWMTHRS   Register = 0x13
	VACTUAL    Register = 0x22
	MSCNT      Register = 0x6A
	CHOPCONF   Register = 0x6C
	DRVSTATUS  Register = 0x6F
	PWMCONF    Register = 0x70
)

type access uint8

const (
	accessR access = 1 << iota
	accessW
	accessRW = accessR | accessW
)

type registerInfo struct {
	name   string
	width  uint8
	access access
}

var registers = map[Register]registerInfo{
	GCONF:      {"GCONF", 10, accessRW},
	GSTAT:      {"GSTAT", 3, accessRW},
	IFCNT:      {"IFCNT", 8, accessR},
	SLAVECONF:  {"SLAVECONF", 12, accessW},
	OTPREAD:    {"OTP_READ", 24, accessR},
	IOIN:       {"IOIN", 32, accessR},
	IHOLDIRUN:  {"IHOLD_IRUN", 20, accessW},
	TPOWERDOWN: {"TPOWERDOWN", 8, accessW},
	TSTEP:      {"TSTEP", 20, accessR},
	TPWMTHRS:   {"TPWMTHRS", 20, accessW},
	VACTUAL:    {"VACTUAL", 24, accessW},
	MSCNT:      {"MSCNT", 10, accessR},
	CHOPCONF:   {"CHOPCONF", 32, accessRW},
	DRVSTATUS:  {"DRV_STATUS", 32, accessR},
	PWMCONF:    {"PWMCONF", 32, accessRW},
}

func (r Register) String() string {
	if info, ok := registers[r]; ok {
		return info.name
	}
	return fmt.Sprintf("REG(%#02x)", uint8(r))
}

// Width returns the number of significant bits of the register, or 0 for an
// unknown address.
func (r Register) Width() uint8 {
	return registers[r].width
}

// Readable reports whether the register can be read back over UART.
func (r Register) Readable() bool {
	return registers[r].access&accessR != 0
}

// Writable reports whether the register accepts writes.
func (r Register) Writable() bool {
	return registers[r].access&accessW != 0
}

// Field is a named bit-field of one register.
type Field struct {
	Reg  Register
	Mask uint32
	Name string
}

func (f Field) String() string {
	return f.Reg.String() + "." + f.Name
}

// Get extracts the field from the register value v.
func (f Field) Get(v uint32) uint32 {
	return (v & f.Mask) >> common.FieldShift(f.Mask)
}

// IsSet reports whether any bit of the field is set in v.
func (f Field) IsSet(v uint32) bool {
	return v&f.Mask != 0
}

// Set returns v with every bit of the field set.
func (f Field) Set(v uint32) uint32 {
	return common.SetBits(v, f.Mask)
}

// Clear returns v with every bit of the field cleared.
func (f Field) Clear(v uint32) uint32 {
	return common.ClearBits(v, f.Mask)
}

// With returns v with the field replaced by x. Bits of x beyond the field
// width are dropped.
func (f Field) With(v, x uint32) uint32 {
	return f.Clear(v) | (x<<common.FieldShift(f.Mask))&f.Mask
}

// GCONF fields.
var (
	GConfIScaleAnalog   = Field{GCONF, 1 << 0, "i_scale_analog"}
	GConfInternalRSense = Field{GCONF, 1 << 1, "internal_rsense"}
	GConfEnSpreadCycle  = Field{GCONF, 1 << 2, "en_spreadcycle"}
	GConfShaft          = Field{GCONF, 1 << 3, "shaft"}
	GConfIndexOTPW      = Field{GCONF, 1 << 4, "index_otpw"}
	GConfIndexStep      = Field{GCONF, 1 << 5, "index_step"}
	GConfPDNDisable     = Field{GCONF, 1 << 6, "pdn_disable"}
	GConfMStepRegSelect = Field{GCONF, 1 << 7, "mstep_reg_select"}
	GConfMultistepFilt  = Field{GCONF, 1 << 8, "multistep_filt"}
	GConfTestMode       = Field{GCONF, 1 << 9, "test_mode"}
)

// GSTAT fields. All of them are cleared by writing 1.
var (
	GStatReset  = Field{GSTAT, 1 << 0, "reset"}
	GStatDrvErr = Field{GSTAT, 1 << 1, "drv_err"}
	GStatUVCP   = Field{GSTAT, 1 << 2, "uv_cp"}
)

var (
	IFCNTCount     = Field{IFCNT, 0xff, "ifcnt"}
	SlaveConfDelay = Field{SLAVECONF, 0x0f << 8, "senddelay"}
)

// IOIN fields.
var (
	IOINEnn      = Field{IOIN, 1 << 0, "enn"}
	IOINMS1      = Field{IOIN, 1 << 2, "ms1"}
	IOINMS2      = Field{IOIN, 1 << 3, "ms2"}
	IOINDiag     = Field{IOIN, 1 << 4, "diag"}
	IOINPDNUART  = Field{IOIN, 1 << 6, "pdn_uart"}
	IOINStep     = Field{IOIN, 1 << 7, "step"}
	IOINSpreadEn = Field{IOIN, 1 << 8, "spread_en"}
	IOINDir      = Field{IOIN, 1 << 9, "dir"}
	IOINVersion  = Field{IOIN, 0xff << 24, "version"}
)

// IHOLD_IRUN fields.
var (
	IHoldIRunIHold      = Field{IHOLDIRUN, 0x1f, "ihold"}
	IHoldIRunIRun       = Field{IHOLDIRUN, 0x1f << 8, "irun"}
	IHoldIRunIHoldDelay = Field{IHOLDIRUN, 0x0f << 16, "iholddelay"}
)

var (
	TPowerDownValue = Field{TPOWERDOWN, 0xff, "tpowerdown"}
	TStepValue      = Field{TSTEP, 0xfffff, "tstep"}
	TPWMThrsValue   = Field{TPWMTHRS, 0xfffff, "tpwmthrs"}
	MSCNTValue      = Field{MSCNT, 0x3ff, "mscnt"}
)

// CHOPCONF fields.
var (
	ChopConfTOff    = Field{CHOPCONF, 0x0f, "toff"}
	ChopConfHStrt   = Field{CHOPCONF, 0x07 << 4, "hstrt"}
	ChopConfHEnd    = Field{CHOPCONF, 0x0f << 7, "hend"}
	ChopConfTBL     = Field{CHOPCONF, 0x03 << 15, "tbl"}
	ChopConfVSense  = Field{CHOPCONF, 1 << 17, "vsense"}
	ChopConfMRES    = Field{CHOPCONF, 0x0f << 24, "mres"}
	ChopConfIntPol  = Field{CHOPCONF, 1 << 28, "intpol"}
	ChopConfDEdge   = Field{CHOPCONF, 1 << 29, "dedge"}
	ChopConfDiss2G  = Field{CHOPCONF, 1 << 30, "diss2g"}
	ChopConfDiss2VS = Field{CHOPCONF, 1 << 31, "diss2vs"}
)

// DRV_STATUS fields.
var (
	DrvStatusOTPW     = Field{DRVSTATUS, 1 << 0, "otpw"}
	DrvStatusOT       = Field{DRVSTATUS, 1 << 1, "ot"}
	DrvStatusS2GA     = Field{DRVSTATUS, 1 << 2, "s2ga"}
	DrvStatusS2GB     = Field{DRVSTATUS, 1 << 3, "s2gb"}
	DrvStatusS2VSA    = Field{DRVSTATUS, 1 << 4, "s2vsa"}
	DrvStatusS2VSB    = Field{DRVSTATUS, 1 << 5, "s2vsb"}
	DrvStatusOLA      = Field{DRVSTATUS, 1 << 6, "ola"}
	DrvStatusOLB      = Field{DRVSTATUS, 1 << 7, "olb"}
	DrvStatusT120     = Field{DRVSTATUS, 1 << 8, "t120"}
	DrvStatusT143     = Field{DRVSTATUS, 1 << 9, "t143"}
	DrvStatusT150     = Field{DRVSTATUS, 1 << 10, "t150"}
	DrvStatusT157     = Field{DRVSTATUS, 1 << 11, "t157"}
	DrvStatusCSActual = Field{DRVSTATUS, 0x1f << 16, "cs_actual"}
	DrvStatusStealth  = Field{DRVSTATUS, 1 << 30, "stealth"}
	DrvStatusStSt     = Field{DRVSTATUS, 1 << 31, "stst"}
)

var allFields = []Field{
	GConfIScaleAnalog, GConfInternalRSense, GConfEnSpreadCycle, GConfShaft,
	GConfIndexOTPW, GConfIndexStep, GConfPDNDisable, GConfMStepRegSelect,
	GConfMultistepFilt, GConfTestMode,
	GStatReset, GStatDrvErr, GStatUVCP,
	IFCNTCount, SlaveConfDelay,
	IOINEnn, IOINMS1, IOINMS2, IOINDiag, IOINPDNUART, IOINStep, IOINSpreadEn,
	IOINDir, IOINVersion,
	IHoldIRunIHold, IHoldIRunIRun, IHoldIRunIHoldDelay,
	TPowerDownValue, TStepValue, TPWMThrsValue, MSCNTValue,
	ChopConfTOff, ChopConfHStrt, ChopConfHEnd, ChopConfTBL, ChopConfVSense,
	ChopConfMRES, ChopConfIntPol, ChopConfDEdge, ChopConfDiss2G, ChopConfDiss2VS,
	DrvStatusOTPW, DrvStatusOT, DrvStatusS2GA, DrvStatusS2GB, DrvStatusS2VSA,
	DrvStatusS2VSB, DrvStatusOLA, DrvStatusOLB, DrvStatusT120, DrvStatusT143,
	DrvStatusT150, DrvStatusT157, DrvStatusCSActual, DrvStatusStealth,
	DrvStatusStSt,
}

// Fields returns the documented fields of reg ordered by mask.
func Fields(reg Register) []Field {
	var out []Field
	for _, f := range allFields {
		if f.Reg == reg {
			out = append(out, f)
		}
	}
	return out
}

// GConfOption is a single bit GCONF option that can be toggled.
type GConfOption uint8

const (
	// SpreadCycle selects spreadCycle instead of stealthChop.
	SpreadCycle GConfOption = iota
	// IScaleAnalog uses VREF as current reference.
	IScaleAnalog
	// InternalRSense uses the internal sense resistors. Enabling it with
	// external sense resistors fitted damages the board.
	InternalRSense
	// MStepRegSelect takes the microstep resolution from CHOPCONF.MRES
	// instead of the MS1/MS2 pins.
	MStepRegSelect
	// PDNDisable disables the PDN function of PDN_UART; required for UART.
	PDNDisable
	// MultistepFilter enables STEP pulse filtering.
	MultistepFilter
)

var gconfOptions = map[GConfOption]Field{
	SpreadCycle:     GConfEnSpreadCycle,
	IScaleAnalog:    GConfIScaleAnalog,
	InternalRSense:  GConfInternalRSense,
	MStepRegSelect:  GConfMStepRegSelect,
	PDNDisable:      GConfPDNDisable,
	MultistepFilter: GConfMultistepFilt,
}

func (o GConfOption) String() string {
	if f, ok := gconfOptions[o]; ok {
		return f.String()
	}
	return fmt.Sprintf("GConfOption(%d)", uint8(o))
}

// ChopConfOption is a single bit CHOPCONF option that can be toggled.
type ChopConfOption uint8

const (
	// VSense selects the high sensitivity, low sense resistor voltage range.
	VSense ChopConfOption = iota
	// Interpolation extrapolates the microstep resolution to 256.
	Interpolation
	// DoubleEdge steps on both edges of STEP.
	DoubleEdge
)

var chopconfOptions = map[ChopConfOption]Field{
	VSense:        ChopConfVSense,
	Interpolation: ChopConfIntPol,
	DoubleEdge:    ChopConfDEdge,
}

func (o ChopConfOption) String() string {
	if f, ok := chopconfOptions[o]; ok {
		return f.String()
	}
	return fmt.Sprintf("ChopConfOption(%d)", uint8(o))
}

// MicrostepResolution is the number of microsteps per full step. Valid values
// are powers of two from 1 to 256.
type MicrostepResolution uint16

const (
	FullStep      MicrostepResolution = 1
	Microsteps2   MicrostepResolution = 2
	Microsteps4   MicrostepResolution = 4
	Microsteps8   MicrostepResolution = 8
	Microsteps16  MicrostepResolution = 16
	Microsteps32  MicrostepResolution = 32
	Microsteps64  MicrostepResolution = 64
	Microsteps128 MicrostepResolution = 128
	Microsteps256 MicrostepResolution = 256
)

// mres returns the CHOPCONF.MRES value selecting m.
func (m MicrostepResolution) mres() (uint32, error) {
	if m == 0 || m > Microsteps256 || m&(m-1) != 0 {
		return 0, fmt.Errorf("%w: %d microsteps", ErrInvalidSetting, m)
	}
	return uint32(8 - bits.TrailingZeros16(uint16(m))), nil
}

// microstepsFromMRES decodes CHOPCONF.MRES. Values above 8 select full steps.
func microstepsFromMRES(v uint32) MicrostepResolution {
	if v > 8 {
		v = 8
	}
	return MicrostepResolution(1) << (8 - v)
}

// ifcntAdvanced reports whether the modulo 256 write counter moved forward
// from before to after. A forward distance of half the ring or more is
// treated as no progress.
func ifcntAdvanced(before, after uint8) bool {
	d := after - before
	return d != 0 && d < 0x80
}
