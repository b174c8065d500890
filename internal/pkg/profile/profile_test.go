package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/stretchr/testify/assert"
)

const full = `name: desk
sources:
  - type: mpu6050
    bus: 1
    address: 0x69
    full_scale: 3
    calibration_samples: 500
  - type: motion
    devices: /proc/bus/input/devices
  - type: iio
  - type: simulated
    kinds: [rotation]
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(full))
	assert.Equal(t, nil, err)
	assert.Equal(t, "desk", p.Name)
	assert.Equal(t, 4, len(p.Sources))
	assert.Equal(t, SourceConfig{
		Type:               TypeMPU6050,
		Bus:                1,
		Address:            0x69,
		FullScale:          3,
		CalibrationSamples: 500,
	}, p.Sources[0])
	assert.Equal(t, "/proc/bus/input/devices", p.Sources[1].Devices)
	assert.Equal(t, []string{"rotation"}, p.Sources[3].Kinds)
}

func TestParseInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{name: "syntax", data: "sources: [\n"},
		{name: "no sources", data: "name: empty\n"},
		{name: "unknown type", data: "sources:\n  - type: bluetooth\n"},
		{name: "unknown kind", data: "sources:\n  - type: simulated\n    kinds: [magnetometer]\n"},
		{name: "full scale", data: "sources:\n  - type: mpu6050\n    full_scale: 4\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.NotEqual(t, nil, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(Path(dir, "fallback"), []byte("sources:\n  - type: simulated\n"), 0o666)
	assert.Equal(t, nil, err)

	p, err := Load(Path(dir, "fallback"))
	assert.Equal(t, nil, err)
	assert.Equal(t, "fallback", p.Name)

	_, err = Load(Path(dir, "missing"))
	assert.NotEqual(t, nil, err)
}

func TestBuild(t *testing.T) {
	p, err := Parse([]byte("sources:\n  - type: simulated\n    kinds: [Gyroscope]\n  - type: simulated\n"))
	assert.Equal(t, nil, err)

	chain, err := p.Build()
	assert.Equal(t, nil, err)

	h, ok := chain.Query(sensor.Gyroscope)
	assert.True(t, ok)
	assert.Equal(t, "simulated Gyroscope", h.Name())

	h, ok = chain.Query(sensor.Rotation)
	assert.True(t, ok)
	assert.Equal(t, "simulated Rotation", h.Name())

	_, err = Profile{Sources: []SourceConfig{{Type: "nope"}}}.Build()
	assert.NotEqual(t, nil, err)
}

func TestDetectChanges(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := DetectChanges(ctx, dir)
	assert.Equal(t, nil, err)

	err = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o666)
	assert.Equal(t, nil, err)
	err = os.WriteFile(Path(dir, "default"), []byte("sources:\n  - type: iio\n"), 0o666)
	assert.Equal(t, nil, err)

	select {
	case name := <-changes:
		assert.Equal(t, Path(dir, "default"), name)
	case <-time.After(time.Second * 2):
		t.Fatal("no change detected")
	}

	cancel()
	deadline := time.After(time.Second * 2)
	for {
		select {
		case _, ok := <-changes:
			if ok {
				continue
			}
		case <-deadline:
			t.Fatal("changes channel not closed")
		}
		break
	}

	_, err = DetectChanges(context.Background(), filepath.Join(dir, "missing"))
	assert.NotEqual(t, nil, err)
}
