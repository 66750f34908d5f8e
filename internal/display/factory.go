package display

import (
	"fmt"
	"strconv"

	"github.com/tx2tx/tx2tx/internal/geometry"
)

// defaultWidth/defaultHeight seed HelperBackend's internally-tracked
// position when backend.options in config carries no explicit screen size.
const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

// New builds the concrete display.Backend named by name ("x11", "wayland",
// or "auto"), following the teacher's display.New()/CreateServerBackend()
// factory pattern. options carries backend.options from config; HelperBackend
// reads "width"/"height" from it since Wayland exposes no in-process
// geometry query.
func New(name string, options map[string]string) (Backend, error) {
	switch name {
	case "x11":
		return NewX11Backend()
	case "wayland", "helper":
		return NewHelperBackend(geometryFromOptions(options))
	case "auto", "":
		if b, err := NewX11Backend(); err == nil {
			return b, nil
		}
		return NewHelperBackend(geometryFromOptions(options))
	default:
		return nil, fmt.Errorf("display: unknown backend %q", name)
	}
}

func geometryFromOptions(options map[string]string) geometry.ScreenGeometry {
	geom := geometry.ScreenGeometry{Width: defaultWidth, Height: defaultHeight}
	if w, err := strconv.Atoi(options["width"]); err == nil && w > 0 {
		geom.Width = w
	}
	if h, err := strconv.Atoi(options["height"]); err == nil && h > 0 {
		geom.Height = h
	}
	return geom
}
