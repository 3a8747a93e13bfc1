package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

// wavHeader builds a 44-byte PCM WAV header for S16LE mono data.
func wavHeader(sampleRate uint32, dataBytes uint32) []byte {
	h := make([]byte, WAVHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataBytes)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], 1) // mono
	binary.LittleEndian.PutUint32(h[24:28], sampleRate)
	binary.LittleEndian.PutUint32(h[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(h[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(h[34:36], 16) // bits per sample
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataBytes)
	return h
}

// patchWAVSizes rewrites the RIFF and data chunk sizes once the final
// data length is known.
func patchWAVSizes(f *os.File, dataBytes uint32) error {
	var sizes [4]byte
	binary.LittleEndian.PutUint32(sizes[:], 36+dataBytes)
	if _, err := f.WriteAt(sizes[:], 4); err != nil {
		return fmt.Errorf("patch riff size: %w", err)
	}
	binary.LittleEndian.PutUint32(sizes[:], dataBytes)
	if _, err := f.WriteAt(sizes[:], 40); err != nil {
		return fmt.Errorf("patch data size: %w", err)
	}
	return nil
}
