package models

// Technical levels use a 1-10 scale. Zero means unknown.
const (
	TechnicalLevelUnknown = 0
	TechnicalLevelMin     = 1
	TechnicalLevelMax     = 10
)

// TechnicalLevelFromCoarse maps a 0-3 rating onto the 1-10 scale
// (0->1, 1->4, 2->7, 3->10). Out-of-range input is clamped first.
func TechnicalLevelFromCoarse(c int) int {
	if c < 0 {
		c = 0
	}
	if c > 3 {
		c = 3
	}
	return 1 + 3*c
}
