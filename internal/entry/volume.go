package entry

import "math"

const (
	VolumeMuted uint32 = 0
	VolumeNorm  uint32 = 0x10000
)

// Volume holds one raw server volume per channel.
type Volume []uint32

func (v Volume) Clone() Volume {
	if v == nil {
		return nil
	}
	out := make(Volume, len(v))
	copy(out, v)
	return out
}

func (v Volume) Avg() uint32 {
	if len(v) == 0 {
		return 0
	}
	var sum uint64
	for _, c := range v {
		sum += uint64(c)
	}
	return uint32(sum / uint64(len(v)))
}

// Percent is the average channel volume relative to VolumeNorm, rounded.
func (v Volume) Percent() int {
	return int(math.Round(float64(v.Avg()) * 100 / float64(VolumeNorm)))
}

// Adjust returns a copy with every channel moved by delta percent of VolumeNorm,
// clamped to [VolumeMuted, maxPercent].
func (v Volume) Adjust(delta, maxPercent int) Volume {
	amount := int64(VolumeNorm) * int64(delta) / 100
	limit := int64(VolumeNorm) * int64(maxPercent) / 100
	out := v.Clone()
	for i, c := range out {
		n := int64(c) + amount
		if n < int64(VolumeMuted) {
			n = int64(VolumeMuted)
		}
		if n > limit {
			n = limit
		}
		out[i] = uint32(n)
	}
	return out
}

// SetPercent returns a copy with every channel set to percent of VolumeNorm.
func (v Volume) SetPercent(percent int) Volume {
	if percent < 0 {
		percent = 0
	}
	raw := uint32(int64(VolumeNorm) * int64(percent) / 100)
	out := make(Volume, len(v))
	for i := range out {
		out[i] = raw
	}
	return out
}
