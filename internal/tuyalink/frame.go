package tuyalink

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Command codes.
const (
	CmdControl   uint32 = 7
	CmdStatus    uint32 = 8
	CmdHeartbeat uint32 = 9
	CmdDPQuery   uint32 = 10
)

const (
	framePrefix uint32 = 0x000055AA
	frameSuffix uint32 = 0x0000AA55

	headerSize  = 16
	trailerSize = 8

	// maxBodySize bounds the length field; real devices stay far below it.
	maxBodySize = 64 * 1024
)

// Frame is one decoded message.
type Frame struct {
	Seq     uint32
	Cmd     uint32
	Payload []byte

	// ReturnCode is set on device frames; HasReturnCode tells it apart from zero.
	ReturnCode    uint32
	HasReturnCode bool
}

// encodeFrame builds a client-to-device frame.
func encodeFrame(seq, cmd uint32, payload []byte) []byte {
	return encode(seq, cmd, nil, payload)
}

// encodeDeviceFrame builds a device-to-client frame with a return code.
// The link only needs it in tests, where it plays the device.
func encodeDeviceFrame(seq, cmd, retcode uint32, payload []byte) []byte {
	rc := make([]byte, 4)
	binary.BigEndian.PutUint32(rc, retcode)
	return encode(seq, cmd, rc, payload)
}

func encode(seq, cmd uint32, retcode, payload []byte) []byte {
	bodyLen := len(retcode) + len(payload) + trailerSize
	buf := make([]byte, headerSize, headerSize+bodyLen)
	binary.BigEndian.PutUint32(buf[0:4], framePrefix)
	binary.BigEndian.PutUint32(buf[4:8], seq)
	binary.BigEndian.PutUint32(buf[8:12], cmd)
	binary.BigEndian.PutUint32(buf[12:16], uint32(bodyLen))
	buf = append(buf, retcode...)
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return binary.BigEndian.AppendUint32(buf, frameSuffix)
}

// readFrame reads and verifies one frame from r. fromDevice selects whether
// the body may start with a return code.
func readFrame(r io.Reader, fromDevice bool) (Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	if p := binary.BigEndian.Uint32(header[0:4]); p != framePrefix {
		return Frame{}, fmt.Errorf("%w: bad prefix %08x", ErrInvalidFrame, p)
	}
	bodyLen := binary.BigEndian.Uint32(header[12:16])
	if bodyLen < trailerSize || bodyLen > maxBodySize {
		return Frame{}, fmt.Errorf("%w: length %d out of range", ErrInvalidFrame, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}

	data := body[:len(body)-trailerSize]
	if s := binary.BigEndian.Uint32(body[len(body)-4:]); s != frameSuffix {
		return Frame{}, fmt.Errorf("%w: bad suffix %08x", ErrInvalidFrame, s)
	}
	want := binary.BigEndian.Uint32(body[len(data) : len(data)+4])
	crc := crc32.NewIEEE()
	crc.Write(header) //nolint:errcheck // hash writes never fail
	crc.Write(data)   //nolint:errcheck // hash writes never fail
	if got := crc.Sum32(); got != want {
		return Frame{}, fmt.Errorf("%w: crc %08x, want %08x", ErrInvalidFrame, got, want)
	}

	f := Frame{
		Seq: binary.BigEndian.Uint32(header[4:8]),
		Cmd: binary.BigEndian.Uint32(header[8:12]),
	}
	// A return code has its upper three bytes clear; encrypted payloads and
	// the version header practically never start that way.
	if fromDevice && len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 {
		f.ReturnCode = binary.BigEndian.Uint32(data[:4])
		f.HasReturnCode = true
		data = data[4:]
	}
	f.Payload = data
	return f, nil
}
