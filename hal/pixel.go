package hal

// RGB565 packs 8-bit channels into PixelFormatRGB565.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// rgb888 expands a packed pixel, repeating the high bits into the low ones so
// full white stays full white.
func rgb888(p uint16) (r, g, b uint8) {
	r5, g6, b5 := uint8(p>>11), uint8(p>>5)&0x3F, uint8(p)&0x1F
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}
