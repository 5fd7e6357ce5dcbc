package actuation

import (
	"fmt"
)

// Command codes sent to the secondary lock controller.
const (
	// CommandLock engages the lock at the given index.
	CommandLock byte = 'L'

	// CommandUnlock releases the lock at the given index.
	CommandUnlock byte = 'U'

	// CommandStatus requests a status report. Index 0 requests all lockers.
	CommandStatus byte = 'S'

	// CommandOnline tells the controller the backend session is up.
	CommandOnline byte = 'O'

	// CommandOffline tells the controller the backend session is down.
	CommandOffline byte = 'F'
)

// Response codes received from the secondary lock controller.
const (
	// ResponseLocked reports the lock at the given index is engaged.
	ResponseLocked byte = '1'

	// ResponseUnlocked reports the lock at the given index is released.
	ResponseUnlocked byte = '2'

	// ResponseAck acknowledges receipt of a lock or unlock command.
	ResponseAck byte = 'A'

	// ResponseError reports the controller could not act on the command.
	ResponseError byte = 'E'
)

// Frame size constraints.
const (
	// FrameSize is the fixed wire size of every frame in both directions.
	FrameSize = 3

	// IndexAll addresses all lockers. Valid only for status requests and
	// online/offline notices.
	IndexAll = 0

	// MaxIndex is the highest addressable locker index. The index travels
	// as a single ASCII digit.
	MaxIndex = 9

	// framePad fills the response slot of outgoing command frames.
	framePad byte = '-'
)

// Frame is one fixed-size message on the secondary controller link.
//
// Both directions share the layout: command code, ASCII-encoded locker
// index, response code. Outgoing command frames carry a pad byte in the
// response slot; incoming frames echo the command they answer and carry
// the controller's response code.
type Frame struct {
	// Command is the command code this frame carries or answers.
	Command byte

	// Index is the 1-based locker index, or IndexAll.
	Index int

	// Response is the controller's response code. Zero on outgoing frames.
	Response byte
}

// NewCommandFrame builds an outgoing command frame.
//
// Parameters:
//   - command: One of the Command* codes
//   - index: 1-based locker index, or IndexAll for broadcast commands
//
// Returns:
//   - Frame: Frame ready to Encode
//   - error: ErrInvalidFrame if the command code or index is out of range
func NewCommandFrame(command byte, index int) (Frame, error) {
	if !validCommand(command) {
		return Frame{}, fmt.Errorf("%w: unknown command 0x%02X", ErrInvalidFrame, command)
	}
	if index < IndexAll || index > MaxIndex {
		return Frame{}, fmt.Errorf("%w: index %d out of range", ErrInvalidFrame, index)
	}
	if index == IndexAll && (command == CommandLock || command == CommandUnlock) {
		return Frame{}, fmt.Errorf("%w: %c requires a specific locker index", ErrInvalidFrame, command)
	}
	return Frame{Command: command, Index: index}, nil
}

// ParseFrame parses a raw 3-byte frame received from the link.
//
// The wire layout is:
//
//	Byte 0: Command code being answered
//	Byte 1: '0' + locker index (ASCII digit)
//	Byte 2: Response code
//
// Parameters:
//   - data: Exactly FrameSize bytes from the link
//
// Returns:
//   - Frame: Parsed frame
//   - error: ErrInvalidFrame if the frame is malformed
func ParseFrame(data []byte) (Frame, error) {
	if len(data) != FrameSize {
		return Frame{}, fmt.Errorf("%w: got %d bytes, need %d", ErrInvalidFrame, len(data), FrameSize)
	}
	if !validCommand(data[0]) {
		return Frame{}, fmt.Errorf("%w: unknown command 0x%02X", ErrInvalidFrame, data[0])
	}
	if data[1] < '0' || data[1] > '0'+MaxIndex {
		return Frame{}, fmt.Errorf("%w: index byte 0x%02X not a digit", ErrInvalidFrame, data[1])
	}
	if !validResponse(data[2]) {
		return Frame{}, fmt.Errorf("%w: unknown response 0x%02X", ErrInvalidFrame, data[2])
	}

	return Frame{
		Command:  data[0],
		Index:    int(data[1] - '0'),
		Response: data[2],
	}, nil
}

// Encode encodes the frame to its fixed 3-byte wire form.
//
// Outgoing command frames (zero Response) carry a pad byte in the
// response slot so that both directions keep the same framing.
func (f Frame) Encode() []byte {
	resp := f.Response
	if resp == 0 {
		resp = framePad
	}
	return []byte{f.Command, byte('0' + f.Index), resp}
}

// IsAck returns true if this frame acknowledges a command.
func (f Frame) IsAck() bool {
	return f.Response == ResponseAck
}

// IsError returns true if this frame reports a controller fault.
func (f Frame) IsError() bool {
	return f.Response == ResponseError
}

// IsStatus returns true if this frame reports a lock position.
func (f Frame) IsStatus() bool {
	return f.Response == ResponseLocked || f.Response == ResponseUnlocked
}

// String returns a human-readable representation of the frame.
func (f Frame) String() string {
	if f.Response == 0 {
		return fmt.Sprintf("Frame{Cmd:%c, Index:%d}", f.Command, f.Index)
	}
	return fmt.Sprintf("Frame{Cmd:%c, Index:%d, Resp:%c}", f.Command, f.Index, f.Response)
}

func validCommand(c byte) bool {
	switch c {
	case CommandLock, CommandUnlock, CommandStatus, CommandOnline, CommandOffline:
		return true
	}
	return false
}

func validResponse(r byte) bool {
	switch r {
	case ResponseLocked, ResponseUnlocked, ResponseAck, ResponseError:
		return true
	}
	return false
}
