/*
NAME
  avcconfig.go

DESCRIPTION
  avcconfig.go extracts the first sequence parameter set NAL unit from an
  AVCDecoderConfigurationRecord, the payload of an H264 sequence header video
  tag (ISO/IEC 14496-15 section 5.2.4.1).

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// FirstSPS returns the first sequence parameter set NAL unit, header byte
// included, found in an AVCDecoderConfigurationRecord. record is the record
// itself: configurationVersion through the SPS/PPS tables, with no leading
// AVCPacketType or composition time bytes.
func FirstSPS(record []byte) ([]byte, error) {
	// configurationVersion, AVCProfileIndication, profile_compatibility,
	// AVCLevelIndication, lengthSizeMinusOne: 5 bytes, then
	// numOfSequenceParameterSets.
	if len(record) < 6 {
		return nil, errors.New("h264: AVCDecoderConfigurationRecord too short")
	}
	numSPS := int(record[5] & 0x1f)
	if numSPS == 0 {
		return nil, errors.New("h264: AVCDecoderConfigurationRecord has no SPS")
	}

	const lenFieldSize = 2
	off := 6
	if off+lenFieldSize > len(record) {
		return nil, errors.New("h264: AVCDecoderConfigurationRecord truncated before SPS length")
	}
	spsLen := int(binary.BigEndian.Uint16(record[off : off+lenFieldSize]))
	off += lenFieldSize
	if spsLen == 0 || off+spsLen > len(record) {
		return nil, errors.New("h264: AVCDecoderConfigurationRecord truncated SPS")
	}
	return record[off : off+spsLen], nil
}
