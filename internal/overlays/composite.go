package overlays

import "fmt"

// Composite blends a packed BGRA overlay onto a packed BGR background of the
// same w×h in place: out = bg·(1−a) + logo·a.
func Composite(bg, overlay []byte, w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("composite: invalid size %dx%d", w, h)
	}
	if len(bg) != w*h*3 {
		return fmt.Errorf("composite: background has %d bytes, want %d", len(bg), w*h*3)
	}
	if len(overlay) != w*h*4 {
		return fmt.Errorf("composite: overlay has %d bytes, want %d", len(overlay), w*h*4)
	}
	for i := 0; i < w*h; i++ {
		o := overlay[i*4 : i*4+4]
		a := uint32(o[3])
		if a == 0 {
			continue
		}
		b := bg[i*3 : i*3+3]
		for c := 0; c < 3; c++ {
			// rounded integer blend
			b[c] = uint8((uint32(b[c])*(255-a) + uint32(o[c])*a + 127) / 255)
		}
	}
	return nil
}
