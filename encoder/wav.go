package encoder

import "encoding/binary"

// WAVEncoder wraps the raw PCM in a standard 44-byte header.
type WAVEncoder struct{}

func (WAVEncoder) ContentType() string { return "audio/wav" }
func (WAVEncoder) Ext() string         { return "wav" }

func (WAVEncoder) Encode(pcm []int16, sampleRate int) ([]byte, error) {
	dataBytes := uint32(len(pcm) * 2)
	out := make([]byte, 44+len(pcm)*2)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], 36+dataBytes)
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], Channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate)*2)
	binary.LittleEndian.PutUint16(out[32:34], 2)
	binary.LittleEndian.PutUint16(out[34:36], BitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], dataBytes)

	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(s))
	}
	return out, nil
}
