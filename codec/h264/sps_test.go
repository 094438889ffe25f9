/*
NAME
  sps_test.go

DESCRIPTION
  sps_test.go tests ParseSPS against hand-built sequence parameter sets,
  using a minimal bit writer to construct exact bitstreams rather than
  relying on captured encoder output.

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

import "testing"

// bitWriter accumulates bits most-significant-bit first, matching the order
// bits.BitReader reads in.
type bitWriter struct {
	buf  []byte
	cur  byte
	nbit int
}

func (w *bitWriter) writeBit(b uint64) {
	w.cur = w.cur<<1 | byte(b&1)
	w.nbit++
	if w.nbit == 8 {
		w.buf = append(w.buf, w.cur)
		w.cur = 0
		w.nbit = 0
	}
}

func (w *bitWriter) u(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.writeBit(v >> uint(i))
	}
}

// ue writes v using unsigned Exp-Golomb coding.
func (w *bitWriter) ue(v uint64) {
	code := v + 1
	nbits := 0
	for c := code; c > 0; c >>= 1 {
		nbits++
	}
	for i := 0; i < nbits-1; i++ {
		w.writeBit(0)
	}
	w.u(nbits, code)
}

// se writes v using signed Exp-Golomb coding, the inverse of spsReader.se.
func (w *bitWriter) se(v int64) {
	if v <= 0 {
		w.ue(uint64(-2 * v))
	} else {
		w.ue(uint64(2*v - 1))
	}
}

func (w *bitWriter) bytes() []byte {
	if w.nbit != 0 {
		w.cur <<= uint(8 - w.nbit)
		w.buf = append(w.buf, w.cur)
		w.cur = 0
		w.nbit = 0
	}
	return w.buf
}

// baselineSPS builds a minimal baseline-profile SPS RBSP for the given
// macroblock dimensions, with no cropping, and returns it prefixed with a NAL
// header byte as ParseSPS expects.
func baselineSPS(widthMBsMinus1, heightMapUnitsMinus1 uint64, vui *vuiTiming) []byte {
	var w bitWriter
	w.u(8, 66)    // profile_idc: baseline.
	w.u(8, 0)     // constraint flags + reserved.
	w.u(8, 30)    // level_idc.
	w.ue(0)       // seq_parameter_set_id.
	w.ue(0)       // log2_max_frame_num_minus4.
	w.ue(0)       // pic_order_cnt_type.
	w.ue(0)       // log2_max_pic_order_cnt_lsb_minus4.
	w.ue(1)       // max_num_ref_frames.
	w.u(1, 0)     // gaps_in_frame_num_value_allowed_flag.
	w.ue(widthMBsMinus1)
	w.ue(heightMapUnitsMinus1)
	w.u(1, 1) // frame_mbs_only_flag.
	w.u(1, 0) // direct_8x8_inference_flag.
	w.u(1, 0) // frame_cropping_flag.
	if vui == nil {
		w.u(1, 0) // vui_parameters_present_flag.
	} else {
		w.u(1, 1) // vui_parameters_present_flag.
		w.u(1, 0) // aspect_ratio_info_present_flag.
		w.u(1, 0) // overscan_info_present_flag.
		w.u(1, 0) // video_signal_type_present_flag.
		w.u(1, 0) // chroma_loc_info_present_flag.
		w.u(1, 1) // timing_info_present_flag.
		w.u(32, uint64(vui.numUnitsInTick))
		w.u(32, uint64(vui.timeScale))
		w.u(1, 1) // fixed_frame_rate_flag.
	}

	nal := append([]byte{0x67}, w.bytes()...) // nal_ref_idc=3, type=7 (SPS).
	return nal
}

type vuiTiming struct {
	numUnitsInTick, timeScale uint32
}

func TestParseSPSDimensions(t *testing.T) {
	// 1280x720: 80 macroblocks wide, 45 macroblock rows.
	nal := baselineSPS(80-1, 45-1, nil)
	info, err := ParseSPS(nal)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if info.Width != 1280 || info.Height != 720 {
		t.Errorf("got %dx%d, want 1280x720", info.Width, info.Height)
	}
	if info.FrameRate != 0 {
		t.Errorf("got frame rate %v, want 0 (no VUI)", info.FrameRate)
	}
}

func TestParseSPSFrameRate(t *testing.T) {
	// time_scale / (2 * num_units_in_tick) = 50000 / (2*1000) = 25 fps.
	// 640x480 is exactly 40x30 macroblocks, so no cropping is needed.
	nal := baselineSPS(640/16-1, 480/16-1, &vuiTiming{numUnitsInTick: 1000, timeScale: 50000})
	info, err := ParseSPS(nal)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if info.Width != 640 || info.Height != 480 {
		t.Errorf("got %dx%d, want 640x480", info.Width, info.Height)
	}
	if info.FrameRate != 25 {
		t.Errorf("got frame rate %v, want 25", info.FrameRate)
	}
}

func TestParseSPSRejectsNonSPS(t *testing.T) {
	if _, err := ParseSPS([]byte{0x61, 0x00}); err == nil { // type 1: non-IDR slice.
		t.Error("expected error for non-SPS NAL unit")
	}
}

func TestParseSPSRejectsShortNAL(t *testing.T) {
	if _, err := ParseSPS([]byte{0x67}); err == nil {
		t.Error("expected error for truncated NAL unit")
	}
}

func TestUnescapeRBSP(t *testing.T) {
	in := []byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x02}
	want := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x02}
	got := unescapeRBSP(in)
	if len(got) != len(want) {
		t.Fatalf("got %d bytes, want %d: %#v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, got[i], want[i])
		}
	}
}
