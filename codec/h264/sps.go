/*
NAME
  sps.go

DESCRIPTION
  sps.go recovers picture dimensions and, where signalled, frame rate from an
  H264 sequence parameter set. It exists only to support informational stream
  logging when a segmenter first captures an H264 sequence header; nothing in
  the archiver depends on the result being correct. The field walk reads only
  as far into the SPS and its VUI as timing_info, skipping everything a
  decoder would need but a log line does not.

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
	"bytes"
	"math"

	"github.com/pkg/errors"

	"github.com/ausocean/streamvault/codec/h264/bits"
)

// nalTypeSPS is the nal_unit_type value for a sequence parameter set, Table
// 7-1.
const nalTypeSPS = 7

// SPSInfo is the subset of a sequence parameter set useful for logging.
type SPSInfo struct {
	Width, Height int

	// FrameRate is 0 if the SPS does not signal fixed timing information.
	FrameRate float64
}

// ParseSPS recovers width, height and, if present, frame rate from nalu, a
// single NAL unit containing a sequence parameter set. nalu must include its
// 1 byte NAL header, as found directly in an AVCDecoderConfigurationRecord or
// after Annex B start code removal.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 2 {
		return SPSInfo{}, errors.New("h264: NAL unit too short for an SPS")
	}
	if typ := nalu[0] & 0x1f; typ != nalTypeSPS {
		return SPSInfo{}, errors.Errorf("h264: NAL unit type %d is not an SPS", typ)
	}

	br := bits.NewBitReader(bytes.NewReader(unescapeRBSP(nalu[1:])))
	r := spsReader{br: br}

	profile := r.u(8)
	r.u(8) // constraint_set0_flag .. reserved_zero_2bits.
	r.u(8) // level_idc.
	r.ue() // seq_parameter_set_id.

	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		chromaFormatIDC := r.ue()
		if chromaFormatIDC == 3 {
			r.u(1) // separate_colour_plane_flag.
		}
		r.ue() // bit_depth_luma_minus8.
		r.ue() // bit_depth_chroma_minus8.
		r.u(1) // qpprime_y_zero_transform_bypass_flag.
		if r.u(1) == 1 {
			return SPSInfo{}, errors.New("h264: SPS scaling matrices not supported")
		}
	}

	r.ue() // log2_max_frame_num_minus4.
	switch picOrderCntType := r.ue(); picOrderCntType {
	case 0:
		r.ue() // log2_max_pic_order_cnt_lsb_minus4.
	case 1:
		r.u(1) // delta_pic_order_always_zero_flag.
		r.se() // offset_for_non_ref_pic.
		r.se() // offset_for_top_to_bottom_field.
		for n := r.ue(); n > 0; n-- {
			r.se() // offset_for_ref_frame[i].
		}
	}

	r.ue() // max_num_ref_frames.
	r.u(1) // gaps_in_frame_num_value_allowed_flag.
	picWidthInMBsMinus1 := r.ue()
	picHeightInMapUnitsMinus1 := r.ue()
	frameMBSOnly := r.u(1) == 1
	if !frameMBSOnly {
		r.u(1) // mb_adaptive_frame_field_flag.
	}
	r.u(1) // direct_8x8_inference_flag.

	var cropLeft, cropRight, cropTop, cropBottom uint64
	if r.u(1) == 1 { // frame_cropping_flag.
		cropLeft = r.ue()
		cropRight = r.ue()
		cropTop = r.ue()
		cropBottom = r.ue()
	}

	if err := r.err(); err != nil {
		return SPSInfo{}, errors.Wrap(err, "h264: reading SPS")
	}

	vuiPresent := r.u(1) == 1
	var frameRate float64
	if vuiPresent {
		frameRate = r.vuiFrameRate()
	}

	// Cropping units per section 7.4.2.1.1, assuming 4:2:0 chroma sampling,
	// which covers every profile that omits chroma_format_idc (the common
	// case for camera-sourced baseline/main streams) and is close enough for
	// logging otherwise.
	frameHeightMult := uint64(2)
	if frameMBSOnly {
		frameHeightMult = 1
	}
	width := int((picWidthInMBsMinus1+1)*16) - int(cropLeft+cropRight)*2
	height := int((picHeightInMapUnitsMinus1+1)*16*frameHeightMult) - int(cropTop+cropBottom)*2*int(frameHeightMult)

	return SPSInfo{Width: width, Height: height, FrameRate: frameRate}, nil
}

// spsReader reads SPS syntax elements from a bit reader with a sticky error.
type spsReader struct {
	br *bits.BitReader
	e  error
}

func (r *spsReader) u(n int) uint64 {
	if r.e != nil {
		return 0
	}
	var v uint64
	v, r.e = r.br.ReadBits(n)
	return v
}

// ue reads an unsigned Exp-Golomb-coded syntax element per section 9.1.
func (r *spsReader) ue() uint64 {
	if r.e != nil {
		return 0
	}
	zeros := -1
	for b := uint64(0); b == 0; zeros++ {
		b, r.e = r.br.ReadBits(1)
		if r.e != nil {
			return 0
		}
	}
	rem, err := r.br.ReadBits(zeros)
	if err != nil {
		r.e = err
		return 0
	}
	return uint64(math.Pow(2, float64(zeros))) - 1 + rem
}

// se reads a signed Exp-Golomb-coded syntax element per section 9.1.1.
func (r *spsReader) se() int64 {
	code := r.ue()
	v := int64((code + 1) / 2)
	if code%2 == 0 {
		return -v
	}
	return v
}

func (r *spsReader) err() error { return r.e }

// vuiFrameRate reads only as much of vui_parameters() as needed to reach
// timing_info, returning 0 if fixed frame timing is not signalled. Parsing
// continues best-effort: a later error here does not invalidate width and
// height already recovered by the caller.
func (r *spsReader) vuiFrameRate() float64 {
	if r.u(1) == 1 { // aspect_ratio_info_present_flag.
		const extendedSAR = 255
		if r.u(8) == extendedSAR {
			r.u(16) // sar_width.
			r.u(16) // sar_height.
		}
	}
	if r.u(1) == 1 { // overscan_info_present_flag.
		r.u(1) // overscan_appropriate_flag.
	}
	if videoSignal := r.u(1) == 1; videoSignal { // video_signal_type_present_flag.
		r.u(3) // video_format.
		r.u(1) // video_full_range_flag.
		if r.u(1) == 1 { // colour_description_present_flag.
			r.u(8) // colour_primaries.
			r.u(8) // transfer_characteristics.
			r.u(8) // matrix_coefficients.
		}
	}
	if r.u(1) == 1 { // chroma_loc_info_present_flag.
		r.ue() // chroma_sample_loc_type_top_field.
		r.ue() // chroma_sample_loc_type_bottom_field.
	}
	if r.u(1) != 1 { // timing_info_present_flag.
		return 0
	}
	numUnitsInTick := r.u(32)
	timeScale := r.u(32)
	r.u(1) // fixed_frame_rate_flag.
	if r.e != nil || numUnitsInTick == 0 {
		return 0
	}
	// Section E.2.1: frame rate is time_scale / (2 * num_units_in_tick) for
	// progressive content, which is the only case this parser targets.
	return float64(timeScale) / (2 * float64(numUnitsInTick))
}

// unescapeRBSP removes emulation_prevention_three_byte occurrences (a 0x03
// following any 0x00 0x00 pair) from a NAL payload.
func unescapeRBSP(nalu []byte) []byte {
	out := make([]byte, 0, len(nalu))
	zeros := 0
	for _, b := range nalu {
		if zeros >= 2 && b == 3 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}
