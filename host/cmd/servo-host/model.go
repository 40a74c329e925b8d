package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gobricks/model"
)

// runModel prints the derived model of every known device.
func runModel(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "device\tR (ohm)\tKe (V s/rad)\tKt (Nm/A)\tJ (kg m2)\tmax torque (uNm)\tfriction (uNm)")
	for _, t := range model.DeviceTypes() {
		dev, err := model.Lookup(t)
		if err != nil {
			return err
		}
		p := dev.Params
		fmt.Fprintf(tw, "%s\t%.2f\t%.4f\t%.4f\t%.3g\t%d\t%d\n",
			t, p.Resistance, p.BackEMF, p.TorqueConstant, p.Inertia, dev.MaxTorque, dev.Model.TorqueFriction)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, t := range model.DeviceTypes() {
		dev, _ := model.Lookup(t)
		m := dev.Model
		fmt.Fprintf(w, "\n%s coefficients\n", t)
		tw = tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintf(tw, "  d/dspeed\t%.6g\t%.6g\t%.6g\n", m.DAngleDSpeed.Float(), m.DSpeedDSpeed.Float(), m.DCurrentDSpeed.Float())
		fmt.Fprintf(tw, "  d/dcurrent\t%.6g\t%.6g\t%.6g\n", m.DAngleDCurrent.Float(), m.DSpeedDCurrent.Float(), m.DCurrentDCurrent.Float())
		fmt.Fprintf(tw, "  d/dvoltage\t%.6g\t%.6g\t%.6g\n", m.DAngleDVoltage.Float(), m.DSpeedDVoltage.Float(), m.DCurrentDVoltage.Float())
		fmt.Fprintf(tw, "  d/dtorque\t%.6g\t%.6g\t%.6g\n", m.DAngleDTorque.Float(), m.DSpeedDTorque.Float(), m.DCurrentDTorque.Float())
		fmt.Fprintf(tw, "  steady\t%.6g\t%.6g\t%.6g\t%.6g\n", m.DVoltageDTorque.Float(), m.DTorqueDVoltage.Float(),
			m.DTorqueDSpeed.Float(), m.DTorqueDAcceleration.Float())
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
