package model

import (
	"strings"

	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/fixmath"
)

// DeviceType identifies a supported motor.
type DeviceType uint8

const (
	EV3Medium DeviceType = iota
	EV3Large
	TechnicSAngular
	TechnicMAngular
	TechnicLAngular
	Interactive
	MoveHub
	TechnicL
	TechnicXL

	numDevices
)

var deviceNames = [numDevices]string{
	EV3Medium:       "ev3_medium",
	EV3Large:        "ev3_large",
	TechnicSAngular: "technic_s_angular",
	TechnicMAngular: "technic_m_angular",
	TechnicLAngular: "technic_l_angular",
	Interactive:     "interactive",
	MoveHub:         "move_hub",
	TechnicL:        "technic_l",
	TechnicXL:       "technic_xl",
}

func (d DeviceType) String() string {
	if d < numDevices {
		return deviceNames[d]
	}
	return "unknown"
}

// ParseDeviceType looks up a device by its configuration name.
func ParseDeviceType(name string) (DeviceType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range deviceNames {
		if n == name {
			return DeviceType(i), nil
		}
	}
	return 0, errors.Wrapf(core.ErrNotSupported, "unknown device %q", name)
}

// DeviceTypes returns all supported devices.
func DeviceTypes() []DeviceType {
	out := make([]DeviceType, numDevices)
	for i := range out {
		out[i] = DeviceType(i)
	}
	return out
}

// Device bundles everything the control path needs to know about a motor.
type Device struct {
	Type       DeviceType
	Params     Params
	Model      *Model
	MaxVoltage int32 // mV
	MaxTorque  int32 // µNm, stall torque at MaxVoltage
}

// Lookup returns the precomputed model of a device.
func Lookup(d DeviceType) (Device, error) {
	if d >= numDevices {
		return Device{}, errors.Wrapf(core.ErrNotSupported, "device type %d", d)
	}
	m := &deviceModels[d]
	return Device{
		Type:       d,
		Params:     deviceParams[d],
		Model:      m,
		MaxVoltage: nominalVoltage,
		MaxTorque:  m.VoltageToTorque(nominalVoltage),
	}, nil
}

// nominalVoltage is the highest motor voltage used by any device.
const nominalVoltage = 9000

// Device parameters. The Technic M angular motor is fitted from a measured
// torque curve, the others follow from their legacy feedforward constants.
var deviceParams = [...]Params{
	EV3Medium: {Resistance: 6.754943832522977, Inductance: 0.014860876431550549, BackEMF: 0.15014255474813723, TorqueConstant: 0.15014255474813723, Inertia: 0.00026030377302996163, Friction: 0.009158620689655174},
	EV3Large: {Resistance: 4.741632020024836, Inductance: 0.01043159044405464, BackEMF: 0.2365422089989639, TorqueConstant: 0.2365422089989639, Inertia: 0.001239021231970405, Friction: 0.00823809523809524},
	TechnicSAngular: {Resistance: 36.98722230758798, Inductance: 0.08137188907669356, BackEMF: 0.38476046774801936, TorqueConstant: 0.38476046774801936, Inertia: 0.00015250126570437195, Friction: 0.0005},
	TechnicMAngular: {Resistance: 10.730253353204173, Inductance: 0.024, BackEMF: 0.37555886736214605, TorqueConstant: 0.2379252, Inertia: 0.00030131407910766883, Friction: 0.021413268},
	TechnicLAngular: {Resistance: 7.290098093586714, Inductance: 0.016038215805890772, BackEMF: 0.381703858956972, TorqueConstant: 0.381703858956972, Inertia: 0.0010134110425175785, Friction: 0.011619602790697674},
	Interactive: {Resistance: 20.588728545309877, Inductance: 0.04529520279968173, BackEMF: 0.309023063326188, TorqueConstant: 0.309023063326188, Inertia: 0.0002365497182754401, Friction: 0.005613422818791947},
	MoveHub: {Resistance: 10.071435384472538, Inductance: 0.022157157845839586, BackEMF: 0.21360540233427044, TorqueConstant: 0.21360540233427044, Inertia: 0.0003171254773049671, Friction: 0.012417391304347828},
	TechnicL: {Resistance: 8.380735468678944, Inductance: 0.01843761803109368, BackEMF: 0.2454832027124353, TorqueConstant: 0.2454832027124353, Inertia: 0.000453003938791255, Friction: 0.013215000000000001},
	TechnicXL: {Resistance: 9.497620194536589, Inductance: 0.020894764427980498, BackEMF: 0.2460334059526994, TorqueConstant: 0.2460334059526994, Inertia: 0.0004206465145918795, Friction: 0.002},
}

var deviceModels = [...]Model{
	EV3Medium: {
		DAngleDSpeed:         fixmath.Coef{Mul: 676963442, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 1032496997, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -935189176, Shift: 38},
		DAngleDCurrent:       fixmath.Coef{Mul: 748484334, Shift: 35},
		DSpeedDCurrent:       fixmath.Coef{Mul: 855812734, Shift: 27},
		DCurrentDCurrent:     fixmath.Coef{Mul: 726592651, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 976091945, Shift: 35},
		DSpeedDVoltage:       fixmath.Coef{Mul: 983712819, Shift: 26},
		DCurrentDVoltage:     fixmath.Coef{Mul: 697024979, Shift: 29},
		DAngleDTorque:        fixmath.Coef{Mul: -750129216, Shift: 38},
		DSpeedDTorque:        fixmath.Coef{Mul: -582059551, Shift: 29},
		DCurrentDTorque:      fixmath.Coef{Mul: 703243370, Shift: 38},
		DVoltageDTorque:      fixmath.Coef{Mul: 772925781, Shift: 34},
		DTorqueDVoltage:      fixmath.Coef{Mul: 745816437, Shift: 25},
		DTorqueDSpeed:        fixmath.Coef{Mul: 1000652030, Shift: 34},
		DTorqueDAcceleration: fixmath.Coef{Mul: 624406867, Shift: 37},
		TorqueFriction:       9159,
	},
	EV3Large: {
		DAngleDSpeed:         fixmath.Coef{Mul: 679582668, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 1043022839, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -1055577852, Shift: 37},
		DAngleDCurrent:       fixmath.Coef{Mul: 993530823, Shift: 37},
		DSpeedDCurrent:       fixmath.Coef{Mul: 569819559, Shift: 28},
		DCurrentDCurrent:     fixmath.Coef{Mul: 766923959, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 921909823, Shift: 36},
		DSpeedDVoltage:       fixmath.Coef{Mul: 930102605, Shift: 27},
		DCurrentDVoltage:     fixmath.Coef{Mul: 998767239, Shift: 29},
		DAngleDTorque:        fixmath.Coef{Mul: -631701973, Shift: 40},
		DSpeedDTorque:        fixmath.Coef{Mul: -982055878, Shift: 32},
		DCurrentDTorque:      fixmath.Coef{Mul: 664918132, Shift: 39},
		DVoltageDTorque:      fixmath.Coef{Mul: 688761792, Shift: 35},
		DTorqueDVoltage:      fixmath.Coef{Mul: 836952281, Shift: 24},
		DTorqueDSpeed:        fixmath.Coef{Mul: 884558741, Shift: 32},
		DTorqueDAcceleration: fixmath.Coef{Mul: 743029342, Shift: 35},
		TorqueFriction:       8238,
	},
	TechnicSAngular: {
		DAngleDSpeed:         fixmath.Coef{Mul: 666380294, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 990199599, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -854787882, Shift: 39},
		DAngleDCurrent:       fixmath.Coef{Mul: 809846317, Shift: 33},
		DSpeedDCurrent:       fixmath.Coef{Mul: 913870446, Shift: 25},
		DCurrentDCurrent:     fixmath.Coef{Mul: 565248401, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 774885648, Shift: 35},
		DSpeedDVoltage:       fixmath.Coef{Mul: 777531949, Shift: 26},
		DCurrentDVoltage:     fixmath.Coef{Mul: 994444558, Shift: 32},
		DAngleDTorque:        fixmath.Coef{Mul: -634729662, Shift: 37},
		DSpeedDTorque:        fixmath.Coef{Mul: -977983133, Shift: 29},
		DCurrentDTorque:      fixmath.Coef{Mul: 555847375, Shift: 38},
		DVoltageDTorque:      fixmath.Coef{Mul: 825754845, Shift: 33},
		DTorqueDVoltage:      fixmath.Coef{Mul: 698101568, Shift: 26},
		DTorqueDSpeed:        fixmath.Coef{Mul: 600062373, Shift: 33},
		DTorqueDAcceleration: fixmath.Coef{Mul: 731628561, Shift: 38},
		TorqueFriction:       500,
	},
	TechnicMAngular: {
		DAngleDSpeed:         fixmath.Coef{Mul: 665501081, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 986543564, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -714584097, Shift: 37},
		DAngleDCurrent:       fixmath.Coef{Mul: 1021677079, Shift: 35},
		DSpeedDCurrent:       fixmath.Coef{Mul: 577993426, Shift: 26},
		DCurrentDCurrent:     fixmath.Coef{Mul: 581160501, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 827404683, Shift: 35},
		DSpeedDVoltage:       fixmath.Coef{Mul: 831442935, Shift: 26},
		DCurrentDVoltage:     fixmath.Coef{Mul: 851702631, Shift: 30},
		DAngleDTorque:        fixmath.Coef{Mul: -642051625, Shift: 38},
		DSpeedDTorque:        fixmath.Coef{Mul: -988648708, Shift: 30},
		DCurrentDTorque:      fixmath.Coef{Mul: 938225734, Shift: 38},
		DVoltageDTorque:      fixmath.Coef{Mul: 774799596, Shift: 34},
		DTorqueDVoltage:      fixmath.Coef{Mul: 744012716, Shift: 25},
		DTorqueDSpeed:        fixmath.Coef{Mul: 624231552, Shift: 32},
		DTorqueDAcceleration: fixmath.Coef{Mul: 722780841, Shift: 37},
		TorqueFriction:       21413,
	},
	TechnicLAngular: {
		DAngleDSpeed:         fixmath.Coef{Mul: 671506896, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 1010642116, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -544068398, Shift: 36},
		DAngleDCurrent:       fixmath.Coef{Mul: 972208603, Shift: 36},
		DSpeedDCurrent:       fixmath.Coef{Mul: 552076454, Shift: 27},
		DCurrentDCurrent:     fixmath.Coef{Mul: 643080344, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 588708223, Shift: 35},
		DSpeedDVoltage:       fixmath.Coef{Mul: 591975114, Shift: 26},
		DCurrentDVoltage:     fixmath.Coef{Mul: 638027816, Shift: 29},
		DAngleDTorque:        fixmath.Coef{Mul: -767320193, Shift: 40},
		DSpeedDTorque:        fixmath.Coef{Mul: -593208689, Shift: 31},
		DCurrentDTorque:      fixmath.Coef{Mul: 846390463, Shift: 39},
		DVoltageDTorque:      fixmath.Coef{Mul: 656230890, Shift: 35},
		DTorqueDVoltage:      fixmath.Coef{Mul: 878441964, Shift: 24},
		DTorqueDSpeed:        fixmath.Coef{Mul: 749077862, Shift: 31},
		DTorqueDAcceleration: fixmath.Coef{Mul: 607733040, Shift: 35},
		TorqueFriction:       11620,
	},
	Interactive: {
		DAngleDSpeed:         fixmath.Coef{Mul: 671596273, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 1010999291, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -623977482, Shift: 38},
		DAngleDCurrent:       fixmath.Coef{Mul: 843074547, Shift: 34},
		DSpeedDCurrent:       fixmath.Coef{Mul: 957599713, Shift: 26},
		DCurrentDCurrent:     fixmath.Coef{Mul: 644442690, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 723026862, Shift: 35},
		DSpeedDVoltage:       fixmath.Coef{Mul: 727065946, Shift: 26},
		DCurrentDVoltage:     fixmath.Coef{Mul: 903838188, Shift: 31},
		DAngleDTorque:        fixmath.Coef{Mul: -821885445, Shift: 38},
		DSpeedDTorque:        fixmath.Coef{Mul: -635431162, Shift: 29},
		DCurrentDTorque:      fixmath.Coef{Mul: 1039539785, Shift: 39},
		DVoltageDTorque:      fixmath.Coef{Mul: 572306253, Shift: 33},
		DTorqueDVoltage:      fixmath.Coef{Mul: 1007259224, Shift: 26},
		DTorqueDSpeed:        fixmath.Coef{Mul: 695375657, Shift: 33},
		DTorqueDAcceleration: fixmath.Coef{Mul: 567426536, Shift: 37},
		TorqueFriction:       5613,
	},
	MoveHub: {
		DAngleDSpeed:         fixmath.Coef{Mul: 675801930, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 1027836529, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -890052439, Shift: 38},
		DAngleDCurrent:       fixmath.Coef{Mul: 873046179, Shift: 35},
		DSpeedDCurrent:       fixmath.Coef{Mul: 996813302, Shift: 27},
		DCurrentDCurrent:     fixmath.Coef{Mul: 708758041, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 763980572, Shift: 35},
		DSpeedDVoltage:       fixmath.Coef{Mul: 769578991, Shift: 26},
		DCurrentDVoltage:     fixmath.Coef{Mul: 932579854, Shift: 30},
		DAngleDTorque:        fixmath.Coef{Mul: -615147092, Shift: 38},
		DSpeedDTorque:        fixmath.Coef{Mul: -953895844, Shift: 30},
		DCurrentDTorque:      fixmath.Coef{Mul: 550161910, Shift: 38},
		DVoltageDTorque:      fixmath.Coef{Mul: 810026060, Shift: 34},
		DTorqueDVoltage:      fixmath.Coef{Mul: 711657045, Shift: 25},
		DTorqueDSpeed:        fixmath.Coef{Mul: 679204131, Shift: 33},
		DTorqueDAcceleration: fixmath.Coef{Mul: 760708626, Shift: 37},
		TorqueFriction:       12417,
	},
	TechnicL: {
		DAngleDSpeed:         fixmath.Coef{Mul: 674545419, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 1022799940, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -612896182, Shift: 37},
		DAngleDCurrent:       fixmath.Coef{Mul: 701504795, Shift: 35},
		DSpeedDCurrent:       fixmath.Coef{Mul: 799714664, Shift: 27},
		DCurrentDCurrent:     fixmath.Coef{Mul: 689499844, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 738089468, Shift: 35},
		DSpeedDVoltage:       fixmath.Coef{Mul: 743114729, Shift: 26},
		DCurrentDVoltage:     fixmath.Coef{Mul: 558788941, Shift: 29},
		DAngleDTorque:        fixmath.Coef{Mul: -860394871, Shift: 39},
		DSpeedDTorque:        fixmath.Coef{Mul: -666533347, Shift: 30},
		DCurrentDTorque:      fixmath.Coef{Mul: 1062485913, Shift: 39},
		DVoltageDTorque:      fixmath.Coef{Mul: 586516460, Shift: 34},
		DTorqueDVoltage:      fixmath.Coef{Mul: 982855200, Shift: 25},
		DTorqueDSpeed:        fixmath.Coef{Mul: 539012277, Shift: 32},
		DTorqueDAcceleration: fixmath.Coef{Mul: 543324376, Shift: 36},
		TorqueFriction:       13215,
	},
	TechnicXL: {
		DAngleDSpeed:         fixmath.Coef{Mul: 675116329, Shift: 37},
		DSpeedDSpeed:         fixmath.Coef{Mul: 1025087720, Shift: 30},
		DCurrentDSpeed:       fixmath.Coef{Mul: -542725344, Shift: 37},
		DAngleDCurrent:       fixmath.Coef{Mul: 757592189, Shift: 35},
		DSpeedDCurrent:       fixmath.Coef{Mul: 864262352, Shift: 27},
		DCurrentDCurrent:     fixmath.Coef{Mul: 698245502, Shift: 33},
		DAngleDVoltage:       fixmath.Coef{Mul: 703200782, Shift: 35},
		DSpeedDVoltage:       fixmath.Coef{Mul: 708154547, Shift: 26},
		DCurrentDVoltage:     fixmath.Coef{Mul: 987412650, Shift: 30},
		DAngleDTorque:        fixmath.Coef{Mul: -927006203, Shift: 39},
		DSpeedDTorque:        fixmath.Coef{Mul: -718412666, Shift: 30},
		DCurrentDTorque:      fixmath.Coef{Mul: 1012500764, Shift: 39},
		DVoltageDTorque:      fixmath.Coef{Mul: 663193975, Shift: 34},
		DTorqueDVoltage:      fixmath.Coef{Mul: 869218922, Shift: 25},
		DTorqueDSpeed:        fixmath.Coef{Mul: 955521765, Shift: 33},
		DTorqueDAcceleration: fixmath.Coef{Mul: 1009030983, Shift: 37},
		TorqueFriction:       2000,
	},
}
