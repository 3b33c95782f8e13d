package aquacomputer

import "testing"

func TestChecksum_Empty(t *testing.T) {
	if crc := Checksum(nil); crc != 0x0000 {
		t.Errorf("checksum of no data should be 0x0000, got %#04x", crc)
	}
}

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0xB4C8, // CRC-16/USB check value
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0xBF40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := Checksum(tt.data); crc != tt.expected {
				t.Errorf("checksum mismatch: expected %#04x, got %#04x", tt.expected, crc)
			}
		})
	}
}

func TestChecksum_SensitiveToEveryByte(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	base := Checksum(data)

	for i := range data {
		data[i] ^= 0x01
		if Checksum(data) == base {
			t.Errorf("flipping byte %d did not change the checksum", i)
		}
		data[i] ^= 0x01
	}
}
