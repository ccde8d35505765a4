package audio

// maxGain caps the configured volume so a misconfigured intro cannot clip
// into painful territory.
const maxGain = 2.0

// clampGain bounds a stored volume to the range the encoder accepts.
func clampGain(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > maxGain {
		return maxGain
	}
	return volume
}

// applyGain scales PCM samples in place, saturating at int16 bounds.
func applyGain(samples []int16, gain float64) {
	if gain == 1.0 {
		return
	}
	for i, s := range samples {
		scaled := float64(s) * gain
		switch {
		case scaled > 32767:
			samples[i] = 32767
		case scaled < -32768:
			samples[i] = -32768
		default:
			samples[i] = int16(scaled)
		}
	}
}
