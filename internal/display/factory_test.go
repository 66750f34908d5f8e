package display

import "testing"

func TestGeometryFromOptionsDefaults(t *testing.T) {
	geom := geometryFromOptions(nil)
	if geom.Width != defaultWidth || geom.Height != defaultHeight {
		t.Fatalf("expected defaults, got %+v", geom)
	}
}

func TestGeometryFromOptionsOverride(t *testing.T) {
	geom := geometryFromOptions(map[string]string{"width": "2560", "height": "1440"})
	if geom.Width != 2560 || geom.Height != 1440 {
		t.Fatalf("expected overridden geometry, got %+v", geom)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("bogus", nil); err == nil {
		t.Fatal("expected an error for an unknown backend name")
	}
}
