package telemetry

import (
	"testing"

	"gobricks/core"
	"gobricks/protocol"
)

func TestSampleCodec(t *testing.T) {
	in := Sample{
		Time: 123456, Count: -4000,
		Angle: 90_000_000_123, EstAngle: 90_000_000_000, EstSpeed: -500000, EstCurrent: 12000,
		RefAngle: 90_000_001_000, RefSpeed: -499000, RefAccel: 2000000,
		Torque: 150000, Proportional: 100000, Integral: -3000, Derivative: 2000, Feedforward: 51000,
		Voltage: -7000, Duty: -9800,
		Actuation: 1, Flags: FlagSaturated | FlagDone,
	}
	out := protocol.NewScratchOutput()
	EncodeSample(out, 2, in)
	data := out.Result()
	id, got, err := DecodeSample(&data)
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 || got != in {
		t.Errorf("decoded %d %+v\nexpected %+v", id, got, in)
	}
	if len(data) != 0 {
		t.Errorf("%d bytes left over", len(data))
	}
	if n := len(out.Result()); n > protocol.PayloadMax {
		t.Errorf("sample takes %d bytes, more than one frame", n)
	}
}

func TestEventCodec(t *testing.T) {
	in := core.Event{Kind: core.EvtLateTick, ID: 1, Time: 4000000000, Value: -1 << 40, Aux: 15}
	out := protocol.NewScratchOutput()
	EncodeEvent(out, in)
	data := out.Result()
	got, err := DecodeEvent(&data)
	if err != nil || got != in {
		t.Errorf("decoded %+v, %v", got, err)
	}
}

func TestStatusCodec(t *testing.T) {
	in := Status{
		ID: 3, Time: 77, Mode: 8, Then: 2, Actuation: 3,
		Angle: -90000, Speed: 10, Current: -5, Load: 1200,
		RefAngle: -90010, RefSpeed: 0, Torque: 44, Duty: 120, Battery: 7200,
		Done: true, Faults: 2,
	}
	out := protocol.NewScratchOutput()
	EncodeStatus(out, in)
	data := out.Result()
	got, err := DecodeStatus(&data)
	if err != nil || got != in {
		t.Errorf("decoded %+v, %v", got, err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	out := protocol.NewScratchOutput()
	EncodeSample(out, 0, Sample{Time: 5, EstAngle: 1000})
	data := out.Result()[:5]
	if _, _, err := DecodeSample(&data); err == nil {
		t.Error("truncated sample decoded without error")
	}
}
