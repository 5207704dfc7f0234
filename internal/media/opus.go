package media

import "encoding/binary"

// OpusHeaderSize is the fixed size of the synthetic Opus identification
// header primed into an audio-only sender adapter before any real frame.
const OpusHeaderSize = 83

// BuildOpusIdentificationHeader assembles the 83-byte header a receiver
// needs to begin decoding Opus from the first real frame. Layout follows
// RFC 7845's OpusHead with the AOPUSHDR/AOPUSDLY/AOPUSPRL wrapper tags a
// downstream decoder convention expects; all multi-byte fields inside the
// header itself are little-endian, unlike every other wire format in this
// module.
func BuildOpusIdentificationHeader(channelCount uint8, sampleRate uint32) []byte {
	buf := make([]byte, OpusHeaderSize)

	copy(buf[0:8], "AOPUSHDR")
	buf[8] = 0x13 // remaining bytes of the length tag stay zero

	copy(buf[16:24], "OpusHead")
	buf[24] = 1 // version
	buf[25] = channelCount
	binary.LittleEndian.PutUint16(buf[26:28], 0) // pre_skip
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate)
	binary.LittleEndian.PutUint16(buf[32:34], 0) // output_gain
	buf[34] = 0                                  // mapping_family

	copy(buf[35:43], "AOPUSDLY")
	// bytes 43:59 are the 16-byte delay payload block, left zero

	copy(buf[59:67], "AOPUSPRL")
	// bytes 67:83 are the 16-byte preroll payload block, left zero

	return buf
}
