// Package iio reads motion sensors exposed by the Linux Industrial I/O subsystem.
package iio

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/fs"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/gethiox/gyrostream/internal/pkg/source"
)

const DefaultRoot = "/sys/bus/iio/devices"

var (
	gyroChannels     = []string{"in_anglvel_x_raw", "in_anglvel_y_raw", "in_anglvel_z_raw"}
	gyroScale        = "in_anglvel_scale"
	rotationChannel  = "in_rot_quaternion_raw"
	rotationScale    = "in_rot_quaternion_scale"
	deviceNamePrefix = "iio:device"
)

// Sensor is a discovered IIO device channel group.
type Sensor struct {
	kind   sensor.Kind
	device string
	name   string
	raw    []string
	scale  string // optional
}

func (s Sensor) Kind() sensor.Kind {
	return s.kind
}

func (s Sensor) Name() string {
	return fmt.Sprintf("%s (%s)", s.name, filepath.Base(s.device))
}

// Read returns one scaled vector, rotation yields the x, y, z part of the quaternion.
func (s Sensor) Read() ([]float64, error) {
	var scale = 1.0
	if s.scale != "" {
		v, err := fs.ReadFloat(s.scale)
		if err != nil {
			return nil, err
		}
		scale = v
	}

	var values []float64
	switch s.kind {
	case sensor.Rotation:
		quat, err := fs.ReadFloats(s.raw[0])
		if err != nil {
			return nil, err
		}
		if len(quat) < 3 {
			return nil, fmt.Errorf("unexpected quaternion length: %d", len(quat))
		}
		values = quat[:3]
	default:
		values = make([]float64, 0, len(s.raw))
		for _, path := range s.raw {
			v, err := fs.ReadFloat(path)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
	}

	for i := range values {
		values[i] *= scale
	}
	return values, nil
}

// Discover lists motion sensors below root, ordered by device name.
func Discover(root string) ([]Sensor, error) {
	entry := fs.NewEntry(root)
	dirs, err := entry.Dirs()
	if err != nil {
		return nil, err
	}

	var names []string
	for name := range dirs {
		if strings.HasPrefix(name, deviceNamePrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var sensors []Sensor
	for _, n := range names {
		dev := dirs[n]
		files, err := dev.Files()
		if err != nil {
			continue
		}

		name := n
		if f, ok := files["name"]; ok {
			if v, err := fs.ReadString(f.Path()); err == nil && v != "" {
				name = v
			}
		}

		optional := func(file string) string {
			if f, ok := files[file]; ok {
				return f.Path()
			}
			return ""
		}

		if dev.HasFiles(gyroChannels...) {
			var raw []string
			for _, c := range gyroChannels {
				raw = append(raw, files[c].Path())
			}
			sensors = append(sensors, Sensor{
				kind:   sensor.Gyroscope,
				device: dev.Path(),
				name:   name,
				raw:    raw,
				scale:  optional(gyroScale),
			})
		}

		if dev.HasFiles(rotationChannel) {
			sensors = append(sensors, Sensor{
				kind:   sensor.Rotation,
				device: dev.Path(),
				name:   name,
				raw:    []string{files[rotationChannel].Path()},
				scale:  optional(rotationScale),
			})
		}
	}
	return sensors, nil
}

type Source struct {
	root    string
	pollers *source.Pollers
}

func New(root string) *Source {
	if root == "" {
		root = DefaultRoot
	}
	return &Source{root: root, pollers: source.NewPollers()}
}

func (s *Source) Query(kind sensor.Kind) (sensor.Handle, bool) {
	sensors, err := Discover(s.root)
	if err != nil {
		return nil, false
	}
	for _, found := range sensors {
		if found.kind == kind {
			return found, true
		}
	}
	return nil, false
}

func (s *Source) Register(handle sensor.Handle, interval time.Duration, cb sensor.Callback) (sensor.Token, error) {
	found, ok := handle.(Sensor)
	if !ok {
		return "", fmt.Errorf("handle \"%s\" is not an iio sensor", handle.Name())
	}

	read := func(now time.Time) ([]float64, error) {
		return found.Read()
	}
	return s.pollers.Start(found.Name(), interval, read, cb), nil
}

func (s *Source) Unregister(token sensor.Token) error {
	return s.pollers.Stop(token)
}
