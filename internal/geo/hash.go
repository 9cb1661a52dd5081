package geo

import (
	"unicode/utf16"

	"eventmap/internal/model"
)

// MaxOffsetDeg bounds the hash-derived offset on each axis (about 400m).
const MaxOffsetDeg = 0.004

// Hash is the classic polynomial string hash (h = h*31 + unit) over UTF-16
// code units, wrapped to 32 bits.
func Hash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	return h
}

// Offset derives a deterministic (dLat, dLng) pair in [-MaxOffsetDeg, MaxOffsetDeg]
// from s. Latitude uses the low 10 bits of the hash, longitude the next 10.
func Offset(s string) (dLat, dLng float64) {
	h := uint32(Hash(s))
	dLat = (float64(h&0x3FF)/1023 - 0.5) * 2 * MaxOffsetDeg
	dLng = (float64((h>>10)&0x3FF)/1023 - 0.5) * 2 * MaxOffsetDeg
	return dLat, dLng
}

// Jitter moves base by the offset derived from s.
func Jitter(base model.Coordinate, s string) model.Coordinate {
	dLat, dLng := Offset(s)
	return model.Coordinate{Lat: base.Lat + dLat, Lng: base.Lng + dLng}
}
