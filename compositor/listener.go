package compositor

import (
	"strings"
)

// Change is a set of things that changed about a surface when a state
// was applied.
type Change uint32

const (
	ChangeBuffer Change = 1 << iota
	ChangeSize
	ChangeMapped
	ChangeUnmapped
	ChangeDamaged
	ChangeOpaque
	ChangeInput
	ChangeTransform
	ChangeBufferSourceBox
	ChangeChildren
	ChangeColorDescription
	ChangePresentationModeHint
	ChangeAlphaMultiplier
	ChangeReleasePoint
	ChangeBlur
	ChangeContrast
	ChangeShadow
	ChangeSlide
	ChangeCommitted
)

var changeNames = []string{
	"buffer",
	"size",
	"mapped",
	"unmapped",
	"damaged",
	"opaque",
	"input",
	"transform",
	"buffer-source-box",
	"children",
	"color-description",
	"presentation-mode-hint",
	"alpha-multiplier",
	"release-point",
	"blur",
	"contrast",
	"shadow",
	"slide",
	"committed",
}

func (c Change) Has(other Change) bool {
	return c&other == other
}

func (c Change) String() string {
	if c == 0 {
		return "none"
	}

	var names []string
	for i, name := range changeNames {
		if c&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// SurfaceListener is notified about changes to a surface's current
// state. Changed is called once per applied state with every change
// that it caused.
type SurfaceListener interface {
	Changed(s *Surface, c Change)
	Destroyed(s *Surface)
}

type SubSurfaceListener interface {
	PositionChanged(sub *SubSurface)
	ModeChanged(sub *SubSurface)
}
