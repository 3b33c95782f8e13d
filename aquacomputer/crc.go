package aquacomputer

// Checksum computes CRC-16/USB (reflected polynomial 0x8005, initial value
// 0xFFFF, xor-out 0xFFFF) over data. Control reports carry it big-endian at
// the profile's checksum offset, computed over the checksum window only.
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc ^ 0xFFFF
}
