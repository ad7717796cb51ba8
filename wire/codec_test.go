package wire

import (
	"bytes"
	"testing"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	h := FrameHeader{PayloadLen: 16, Type: frameTypePDU}
	buf := make([]byte, FrameHeaderLen)
	if err := h.Encode(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeFrameHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestPDURoundTrip(t *testing.T) {
	cmd := NewPhysicalCommand(BRD, 0, 0x0000)
	pdu := PDU{
		Command:        cmd,
		Index:          3,
		IRQ:            0,
		Data:           []byte{0xAB, 0xCD},
		WorkingCounter: 1,
	}
	buf := make([]byte, EncodedLen(2))
	encoded, err := pdu.Encode(buf, 2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodePDU(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Command.Code != BRD {
		t.Fatalf("command code mismatch: %v", decoded.Command.Code)
	}
	if decoded.Index != 3 {
		t.Fatalf("index mismatch: %d", decoded.Index)
	}
	if !bytes.Equal(decoded.Data, []byte{0xAB, 0xCD}) {
		t.Fatalf("data mismatch: %v", decoded.Data)
	}
	if decoded.WorkingCounter != 1 {
		t.Fatalf("wkc mismatch: %d", decoded.WorkingCounter)
	}
}

func TestPDUEncodePadsData(t *testing.T) {
	cmd := NewPhysicalCommand(BRD, 0, 0)
	pdu := PDU{Command: cmd, Index: 0, Data: nil}
	buf := make([]byte, EncodedLen(4))
	encoded, err := pdu.Encode(buf, 4)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodePDU(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Data, []byte{0, 0, 0, 0}) {
		t.Fatalf("expected zero padded data, got %v", decoded.Data)
	}
}

func TestDecodePDURejectsLeftoverBytes(t *testing.T) {
	cmd := NewPhysicalCommand(BRD, 0, 0)
	pdu := PDU{Command: cmd, Index: 0, Data: []byte{1, 2}}
	buf := make([]byte, EncodedLen(2)+3)
	encoded, err := pdu.Encode(buf[:EncodedLen(2)], 2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	withTrailing := append(encoded, 0, 0, 0)
	if _, err := DecodePDU(withTrailing); err == nil {
		t.Fatal("expected error for leftover bytes, got nil")
	}
}

func TestDecodePDURejectsUnknownCommand(t *testing.T) {
	buf := make([]byte, pduHeaderLen+wkcLen)
	buf[0] = 0xFF // unknown command code
	if _, err := DecodePDU(buf); err == nil {
		t.Fatal("expected error for unknown command code")
	}
}

func TestEncodeEthernetFrameRoundTrip(t *testing.T) {
	dst := [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	src := MasterMAC
	cmd := NewPhysicalCommand(BRD, 0, 0)
	pdu := PDU{Command: cmd, Index: 0, Data: []byte{0xAB, 0xCD}}

	buf := make([]byte, 64)
	frame, err := EncodeEthernetFrame(buf, dst, src, pdu, 2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// 14 (eth) + 2 (frame header) + 10 (pdu header) + 2 (data) + 2 (wkc) = 30
	if len(frame) != 30 {
		t.Fatalf("expected 30 byte frame, got %d", len(frame))
	}

	hdr, payload, err := DecodeEthernetFrame(frame)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if hdr.EtherType != EtherTypeECAT {
		t.Fatalf("ethertype mismatch: 0x%04X", hdr.EtherType)
	}
	if hdr.Src != MasterMAC {
		t.Fatalf("src mac mismatch: %v", hdr.Src)
	}

	decodedPDU, err := DecodeECATPayload(payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !bytes.Equal(decodedPDU.Data, []byte{0xAB, 0xCD}) {
		t.Fatalf("data mismatch: %v", decodedPDU.Data)
	}
}
