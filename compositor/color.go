package compositor

import (
	"fmt"

	"deedles.dev/wlcommit/region"
)

type Colorimetry int

const (
	ColorimetryBT709 Colorimetry = iota
	ColorimetryBT2020
)

type TransferFunction int

const (
	TransferSRGB TransferFunction = iota
	TransferLinear
	TransferGamma22
	TransferPerceptualQuantizer
)

// YUVCoefficients is the matrix used to convert YUV buffer contents to
// RGB.
type YUVCoefficients int

const (
	YUVIdentity YUVCoefficients = iota
	YUVBT601
	YUVBT709
	YUVBT2020
)

type EncodingRange int

const (
	RangeFull EncodingRange = iota
	RangeLimited
)

// ColorDescription describes how the contents of a surface's buffer
// should be interpreted.
type ColorDescription struct {
	Colorimetry Colorimetry
	Transfer    TransferFunction
	YUV         YUVCoefficients
	Range       EncodingRange
}

// SRGB is the color description of surfaces that don't say otherwise.
var SRGB = ColorDescription{
	Colorimetry: ColorimetryBT709,
	Transfer:    TransferSRGB,
}

// WithYUV returns a copy of d that uses the given YUV conversion.
func (d ColorDescription) WithYUV(c YUVCoefficients, r EncodingRange) ColorDescription {
	d.YUV = c
	d.Range = r
	return d
}

func (d ColorDescription) String() string {
	return fmt.Sprintf("color(%v %v yuv=%v range=%v)", d.Colorimetry, d.Transfer, d.YUV, d.Range)
}

type RenderingIntent int

const (
	IntentPerceptual RenderingIntent = iota
	IntentRelativeColorimetric
	IntentSaturation
	IntentAbsoluteColorimetric
)

// ContentType is a hint about what a surface shows.
type ContentType int

const (
	ContentNone ContentType = iota
	ContentPhoto
	ContentVideo
	ContentGame
)

type PresentationModeHint int

const (
	PresentationVSync PresentationModeHint = iota
	PresentationAsync
)

// Blur asks for the area behind a surface to be blurred.
type Blur struct {
	Region region.Region
}

// Contrast asks for the area behind a surface to have its colors
// adjusted.
type Contrast struct {
	Region     region.Region
	Contrast   float64
	Intensity  float64
	Saturation float64
}

// Shadow is a server-drawn drop shadow around a surface.
type Shadow struct {
	Left, Top, Right, Bottom int
}

type SlideEdge int

const (
	SlideLeft SlideEdge = iota
	SlideTop
	SlideRight
	SlideBottom
)

// Slide asks for the surface to slide in from an edge when shown.
type Slide struct {
	Edge   SlideEdge
	Offset int
}
