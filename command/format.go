package command

import (
	"gobricks/control"
	"gobricks/core"
	"gobricks/servo"
)

// formatMilli writes a thousandths value as a decimal with three digits.
func formatMilli(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	frac := core.Itoa(v%1000 + 1000)
	return sign + core.Itoa(v/1000) + "." + frac[1:]
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatState(st servo.Snapshot) string {
	return "t=" + core.Itoa(int64(st.Time)) +
		" mode=" + st.Mode.String() +
		" then=" + st.Then.String() +
		" actuation=" + st.Actuation.String() +
		" angle=" + formatMilli(st.Angle) +
		" speed=" + formatMilli(int64(st.Speed)) +
		" ref_angle=" + formatMilli(st.RefAngle) +
		" ref_speed=" + formatMilli(int64(st.RefSpeed)) +
		" load=" + formatMilli(int64(st.Load)) +
		" duty=" + core.Itoa(int64(st.Duty)) +
		" battery=" + core.Itoa(int64(st.Battery)) +
		" done=" + flag(st.Done) +
		" stalled=" + flag(st.Stalled) +
		" faults=" + core.Itoa(int64(st.Faults))
}

func formatSettings(c control.Settings) string {
	return "speed=" + formatMilli(int64(c.Limits.Speed)) +
		" accel=" + formatMilli(int64(c.Limits.Acceleration)) +
		" decel=" + formatMilli(int64(c.Limits.Deceleration)) +
		" duty=" + core.Itoa(int64(c.Limits.Duty/100)) +
		" torque=" + formatMilli(int64(c.Limits.Torque)) +
		" kp=" + core.Itoa(int64(c.PID.Kp)) +
		" ki=" + core.Itoa(int64(c.PID.Ki)) +
		" kd=" + core.Itoa(int64(c.PID.Kd)) +
		" rate=" + formatMilli(int64(c.PID.IntegralRate)) +
		" pos_tol=" + formatMilli(int64(c.Tolerances.Position)) +
		" speed_tol=" + formatMilli(int64(c.Tolerances.Speed)) +
		" dwell=" + core.Itoa(int64(c.Tolerances.Dwell)) +
		" stall_speed=" + formatMilli(int64(c.Stall.Speed)) +
		" stall_time=" + core.Itoa(int64(c.Stall.Time))
}
