package telemetry

import (
	"gobricks/core"
	"gobricks/protocol"
)

// EncodeSample writes the fields of a MsgSample message: the servo id
// followed by the sample. 64 bit angles are sent relative to EstAngle to
// keep the message short.
func EncodeSample(out protocol.OutputBuffer, id uint8, s Sample) {
	protocol.EncodeVLQUint(out, uint32(id))
	protocol.EncodeVLQUint(out, s.Time)
	protocol.EncodeVLQInt(out, s.Count)
	protocol.EncodeVLQInt64(out, s.EstAngle)
	protocol.EncodeVLQInt(out, int32(s.Angle-s.EstAngle))
	protocol.EncodeVLQInt(out, s.EstSpeed)
	protocol.EncodeVLQInt(out, s.EstCurrent)
	protocol.EncodeVLQInt(out, int32(s.RefAngle-s.EstAngle))
	protocol.EncodeVLQInt(out, s.RefSpeed)
	protocol.EncodeVLQInt(out, s.RefAccel)
	protocol.EncodeVLQInt(out, s.Torque)
	protocol.EncodeVLQInt(out, s.Proportional)
	protocol.EncodeVLQInt(out, s.Integral)
	protocol.EncodeVLQInt(out, s.Derivative)
	protocol.EncodeVLQInt(out, s.Feedforward)
	protocol.EncodeVLQInt(out, s.Voltage)
	protocol.EncodeVLQInt(out, s.Duty)
	protocol.EncodeVLQUint(out, uint32(s.Actuation)|uint32(s.Flags)<<8)
}

// DecodeSample reads what EncodeSample wrote.
func DecodeSample(data *[]byte) (id uint8, s Sample, err error) {
	d := decoder{data: data}
	id = uint8(d.uint())
	s.Time = d.uint()
	s.Count = d.int()
	s.EstAngle = d.int64()
	s.Angle = s.EstAngle + int64(d.int())
	s.EstSpeed = d.int()
	s.EstCurrent = d.int()
	s.RefAngle = s.EstAngle + int64(d.int())
	s.RefSpeed = d.int()
	s.RefAccel = d.int()
	s.Torque = d.int()
	s.Proportional = d.int()
	s.Integral = d.int()
	s.Derivative = d.int()
	s.Feedforward = d.int()
	s.Voltage = d.int()
	s.Duty = d.int()
	bits := d.uint()
	s.Actuation = uint8(bits)
	s.Flags = Flags(bits >> 8)
	return id, s, d.err
}

// EncodeEvent writes the fields of a MsgEvent message.
func EncodeEvent(out protocol.OutputBuffer, e core.Event) {
	protocol.EncodeVLQUint(out, uint32(e.Kind))
	protocol.EncodeVLQUint(out, uint32(e.ID))
	protocol.EncodeVLQUint(out, e.Time)
	protocol.EncodeVLQInt64(out, e.Value)
	protocol.EncodeVLQInt(out, e.Aux)
}

func DecodeEvent(data *[]byte) (core.Event, error) {
	d := decoder{data: data}
	e := core.Event{
		Kind: uint8(d.uint()),
		ID:   uint8(d.uint()),
		Time: d.uint(),
	}
	e.Value = d.int64()
	e.Aux = d.int()
	return e, d.err
}

// Status is the wire form of a servo snapshot. Angles and speeds are at
// the output shaft.
type Status struct {
	ID        uint8
	Time      uint32
	Mode      uint8
	Then      uint8
	Actuation uint8
	Angle     int64
	Speed     int32
	Current   int32
	Load      int32
	RefAngle  int64
	RefSpeed  int32
	Torque    int32
	Duty      int32
	Battery   int32
	Done      bool
	Stalled   bool
	Faults    uint32
}

func EncodeStatus(out protocol.OutputBuffer, st Status) {
	protocol.EncodeVLQUint(out, uint32(st.ID))
	protocol.EncodeVLQUint(out, st.Time)
	protocol.EncodeVLQUint(out, uint32(st.Mode)|uint32(st.Then)<<8|uint32(st.Actuation)<<16)
	protocol.EncodeVLQInt64(out, st.Angle)
	protocol.EncodeVLQInt(out, st.Speed)
	protocol.EncodeVLQInt(out, st.Current)
	protocol.EncodeVLQInt(out, st.Load)
	protocol.EncodeVLQInt(out, int32(st.RefAngle-st.Angle))
	protocol.EncodeVLQInt(out, st.RefSpeed)
	protocol.EncodeVLQInt(out, st.Torque)
	protocol.EncodeVLQInt(out, st.Duty)
	protocol.EncodeVLQInt(out, st.Battery)
	var flags uint32
	if st.Done {
		flags |= 1
	}
	if st.Stalled {
		flags |= 2
	}
	protocol.EncodeVLQUint(out, flags)
	protocol.EncodeVLQUint(out, st.Faults)
}

func DecodeStatus(data *[]byte) (Status, error) {
	d := decoder{data: data}
	var st Status
	st.ID = uint8(d.uint())
	st.Time = d.uint()
	modes := d.uint()
	st.Mode, st.Then, st.Actuation = uint8(modes), uint8(modes>>8), uint8(modes>>16)
	st.Angle = d.int64()
	st.Speed = d.int()
	st.Current = d.int()
	st.Load = d.int()
	st.RefAngle = st.Angle + int64(d.int())
	st.RefSpeed = d.int()
	st.Torque = d.int()
	st.Duty = d.int()
	st.Battery = d.int()
	flags := d.uint()
	st.Done, st.Stalled = flags&1 != 0, flags&2 != 0
	st.Faults = d.uint()
	return st, d.err
}

// decoder reads VLQ fields and keeps the first error.
type decoder struct {
	data *[]byte
	err  error
}

func (d *decoder) int() int32 {
	if d.err != nil {
		return 0
	}
	v, err := protocol.DecodeVLQInt(d.data)
	d.err = err
	return v
}

func (d *decoder) uint() uint32 {
	return uint32(d.int())
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, err := protocol.DecodeVLQInt64(d.data)
	d.err = err
	return v
}
