// Package protocol frames messages between the servo firmware and the host
// tool.
//
// A frame is a length byte, a sequence byte, a payload, a CRC16 and a sync
// byte. The payload starts with a VLQ message ID followed by VLQ encoded
// fields. Every received frame is acknowledged with an empty frame carrying
// the next expected sequence number.
package protocol

// Version is reported in the identify response.
const Version = "0.3.0"

const (
	HeaderSize  = 2
	TrailerSize = 3
	FrameMin    = HeaderSize + TrailerSize
	FrameMax    = 255
	PayloadMax  = FrameMax - FrameMin

	SyncByte = 0x7E

	// Sequence bytes carry SeqDest in the high nibble and a counter in the
	// low nibble.
	SeqMask = 0x0F
	SeqDest = 0x10

	// MessageMax is the capacity of a ScratchOutput, enough for several
	// frames.
	MessageMax = 512
)

// Message IDs.
const (
	MsgIdentify = 1 // host: no fields; firmware: version, servo count
	MsgCommand  = 2 // host: command line string
	MsgResult   = 3 // firmware: result code, message string
	MsgSample   = 4 // firmware: servo id, telemetry sample
	MsgEvent    = 5 // firmware: servo event
	MsgStatus   = 6 // firmware: servo id, snapshot
)

// Result codes of MsgResult.
const (
	ResultOK = iota
	ResultInvalidArgument
	ResultBusy
	ResultNotSupported
	ResultError
)

// NextSeq returns the sequence number following seq.
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | SeqDest
}
