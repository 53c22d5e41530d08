package detector

import (
	"errors"
	"image"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ResizeFactor != 0.25 {
		t.Errorf("ResizeFactor = %v, want 0.25", cfg.ResizeFactor)
	}
	if cfg.ScaleFactor != 1.1 {
		t.Errorf("ScaleFactor = %v, want 1.1", cfg.ScaleFactor)
	}
	if cfg.MinNeighbors != 3 {
		t.Errorf("MinNeighbors = %d, want 3", cfg.MinNeighbors)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "zero resize", modify: func(c *Config) { c.ResizeFactor = 0 }},
		{name: "upscale", modify: func(c *Config) { c.ResizeFactor = 1.5 }},
		{name: "scale factor 1", modify: func(c *Config) { c.ScaleFactor = 1 }},
		{name: "negative neighbors", modify: func(c *Config) { c.MinNeighbors = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSortByArea(t *testing.T) {
	small := image.Rect(0, 0, 10, 10)
	big := image.Rect(50, 50, 150, 150)
	mid1 := image.Rect(0, 0, 20, 20)
	mid2 := image.Rect(100, 0, 120, 20)

	rects := []image.Rectangle{small, mid1, big, mid2}
	SortByArea(rects)

	want := []image.Rectangle{big, mid1, mid2, small}
	for i := range want {
		if rects[i] != want[i] {
			t.Errorf("rects[%d] = %v, want %v", i, rects[i], want[i])
		}
	}
}

func TestRescale(t *testing.T) {
	got := rescale(image.Rect(10, 20, 30, 50), 0.25)
	if want := image.Rect(40, 80, 120, 200); got != want {
		t.Errorf("rescale() = %v, want %v", got, want)
	}

	if got := rescale(image.Rect(1, 1, 3, 3), 1); got != image.Rect(1, 1, 3, 3) {
		t.Errorf("rescale() with factor 1 = %v", got)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []image.Rectangle
		wantErr bool
	}{
		{
			name: "two faces in service order",
			line: `{"faces":[{"x":1,"y":2,"width":3,"height":4},{"x":10,"y":10,"width":50,"height":50}]}`,
			want: []image.Rectangle{image.Rect(1, 2, 4, 6), image.Rect(10, 10, 60, 60)},
		},
		{
			name: "no faces",
			line: `{"faces":[]}`,
			want: []image.Rectangle{},
		},
		{
			name: "degenerate face dropped",
			line: `{"faces":[{"x":1,"y":2,"width":0,"height":4}]}`,
			want: []image.Rectangle{},
		},
		{
			name:    "service error",
			line:    `{"faces":[],"error":"model not loaded"}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			line:    `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResponse([]byte(tt.line))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseResponse() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("face %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
