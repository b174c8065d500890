// Package profile describes which native backends serve the sensor streams.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/gethiox/gyrostream/internal/pkg/source"
	"github.com/gethiox/gyrostream/internal/pkg/source/iio"
	"github.com/gethiox/gyrostream/internal/pkg/source/motion"
	"github.com/gethiox/gyrostream/internal/pkg/source/mpu6050"
	"github.com/gethiox/gyrostream/internal/pkg/source/simulated"
	"gopkg.in/yaml.v3"
)

var log = logger.GetLogger()

const (
	TypeMotion    = "motion"
	TypeIIO       = "iio"
	TypeMPU6050   = "mpu6050"
	TypeSimulated = "simulated"
)

// SourceConfig is one backend entry, fields unrelated to its type are ignored.
type SourceConfig struct {
	Type string `yaml:"type"`

	// motion
	Devices string `yaml:"devices,omitempty"`

	// iio
	Root string `yaml:"root,omitempty"`

	// mpu6050
	Bus                int   `yaml:"bus,omitempty"`
	Address            uint8 `yaml:"address,omitempty"`
	FullScale          uint8 `yaml:"full_scale,omitempty"`
	CalibrationSamples int   `yaml:"calibration_samples,omitempty"`

	// simulated
	Kinds []string `yaml:"kinds,omitempty"`
}

// Profile lists backends in priority order, the first one having a sensor of given kind serves it.
type Profile struct {
	Name    string         `yaml:"name"`
	Sources []SourceConfig `yaml:"sources"`
}

func Parse(data []byte) (Profile, error) {
	var p Profile
	err := yaml.Unmarshal(data, &p)
	if err != nil {
		return p, fmt.Errorf("yaml unmarshal failed: %w", err)
	}
	if len(p.Sources) == 0 {
		return p, fmt.Errorf("profile \"%s\" has no sources", p.Name)
	}
	for i, s := range p.Sources {
		_, err := s.build()
		if err != nil {
			return p, fmt.Errorf("source %d: %w", i, err)
		}
	}
	return p, nil
}

func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}

	p, err := Parse(data)
	if err != nil {
		return p, fmt.Errorf("parsing \"%s\" profile failed: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// Path returns the file of named profile within dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".yaml")
}

// Build creates a fresh chain of sources, registrations of a previous chain are not shared.
func (p Profile) Build() (*source.Chain, error) {
	var sources []sensor.Source
	for i, s := range p.Sources {
		src, err := s.build()
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		sources = append(sources, src)
	}
	log.Info(fmt.Sprintf("profile \"%s\" built with %d sources", p.Name, len(sources)), logger.Debug)
	return source.NewChain(sources...), nil
}

func (s SourceConfig) build() (sensor.Source, error) {
	switch strings.ToLower(s.Type) {
	case TypeMotion:
		return motion.New(s.Devices), nil
	case TypeIIO:
		return iio.New(s.Root), nil
	case TypeMPU6050:
		if s.FullScale > 3 {
			return nil, fmt.Errorf("full_scale out of range: %d", s.FullScale)
		}
		return mpu6050.New(mpu6050.Config{
			Bus:                s.Bus,
			Address:            s.Address,
			FullScale:          s.FullScale,
			CalibrationSamples: s.CalibrationSamples,
		}), nil
	case TypeSimulated:
		var kinds []sensor.Kind
		for _, k := range s.Kinds {
			kind, err := sensor.ParseKind(k)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, kind)
		}
		if len(s.Kinds) == 0 {
			kinds = sensor.Kinds
		}
		return simulated.New(kinds...), nil
	default:
		return nil, fmt.Errorf("unsupported source type: \"%s\"", s.Type)
	}
}
