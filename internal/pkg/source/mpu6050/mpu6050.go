// Package mpu6050 reads the gyroscope of an InvenSense MPU-6050 connected over I2C.
package mpu6050

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/d2r2/go-i2c"
	i2cLogger "github.com/d2r2/go-logger"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/gethiox/gyrostream/internal/pkg/source"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	regGyroConfig = 0x1B
	regGyroXOut   = 0x43
	regPowerMgmt1 = 0x6B
	regWhoAmI     = 0x75

	DefaultAddress = 0x68
)

// degrees per second full scale range selected by FS_SEL, and matching LSB per degree per second
var sensitivity = [4]float64{131, 65.5, 32.8, 16.4}

// Bus is the part of *i2c.I2C the source needs.
type Bus interface {
	ReadRegU8(reg byte) (byte, error)
	WriteRegU8(reg byte, value byte) error
	ReadRegBytes(reg byte, n int) ([]byte, int, error)
	Close() error
}

type OpenFunc func(address uint8, bus int) (Bus, error)

// go-i2c logs every transfer on debug level, its logger is process wide
var quietI2C sync.Once

func openI2C(address uint8, bus int) (Bus, error) {
	conn, err := i2c.NewI2C(address, bus)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Config struct {
	Bus                int
	Address            uint8
	FullScale          uint8 // FS_SEL, 0-3
	CalibrationSamples int   // readings averaged as zero offset at register time, keep the device still
}

type Handle struct {
	cfg Config
}

func (h Handle) Kind() sensor.Kind {
	return sensor.Gyroscope
}

func (h Handle) Name() string {
	return fmt.Sprintf("MPU-6050 (bus %d, 0x%02x)", h.cfg.Bus, h.cfg.Address)
}

type Source struct {
	cfg     Config
	open    OpenFunc
	pollers *source.Pollers

	mu    sync.Mutex
	buses map[sensor.Token]Bus
}

func New(cfg Config) *Source {
	quietI2C.Do(func() {
		i2cLogger.ChangePackageLogLevel("i2c", i2cLogger.InfoLevel)
	})
	return NewWithOpener(cfg, openI2C)
}

func NewWithOpener(cfg Config, open OpenFunc) *Source {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.FullScale > 3 {
		cfg.FullScale = 3
	}
	return &Source{
		cfg:     cfg,
		open:    open,
		pollers: source.NewPollers(),
		buses:   make(map[sensor.Token]Bus),
	}
}

// Query reads the WHO_AM_I register, the chip reports its 7-bit address without the AD0 bit.
// Nothing is written, the device is configured by Register. Every call opens the bus
// briefly, the chip may be attached or removed between calls.
func (s *Source) Query(kind sensor.Kind) (sensor.Handle, bool) {
	if kind != sensor.Gyroscope {
		return nil, false
	}

	bus, err := s.open(s.cfg.Address, s.cfg.Bus)
	if err != nil {
		log.Info(fmt.Sprintf("opening i2c bus failed: %v", err), logger.Debug)
		return nil, false
	}
	defer bus.Close()

	id, err := bus.ReadRegU8(regWhoAmI)
	if err != nil {
		log.Info(fmt.Sprintf("reading WHO_AM_I failed: %v", err), logger.Debug)
		return nil, false
	}
	if id&0x7e != DefaultAddress {
		log.Info(fmt.Sprintf("unexpected WHO_AM_I value: 0x%02x", id), logger.Debug)
		return nil, false
	}
	return Handle{cfg: s.cfg}, true
}

func (s *Source) Register(handle sensor.Handle, interval time.Duration, cb sensor.Callback) (sensor.Token, error) {
	h, ok := handle.(Handle)
	if !ok {
		return "", fmt.Errorf("handle \"%s\" is not an MPU-6050", handle.Name())
	}

	bus, err := s.open(h.cfg.Address, h.cfg.Bus)
	if err != nil {
		return "", fmt.Errorf("opening i2c bus failed: %w", err)
	}

	err = bus.WriteRegU8(regPowerMgmt1, 0)
	if err != nil {
		bus.Close()
		return "", fmt.Errorf("failed to initiate device: %w", err)
	}

	err = bus.WriteRegU8(regGyroConfig, h.cfg.FullScale<<3)
	if err != nil {
		bus.Close()
		return "", fmt.Errorf("failed to set resolution: %w", err)
	}

	log.Info("calculating offset, keep device on the ground", zap.String("source", h.Name()), logger.Info)
	offset, err := calibrate(bus, h.cfg.CalibrationSamples)
	if err != nil {
		bus.Close()
		return "", fmt.Errorf("calibration failed: %w", err)
	}
	log.Info(fmt.Sprintf(
		"calculating offset done (x: %.2f, y: %.2f, z: %.2f), ready to go",
		offset[0], offset[1], offset[2],
	), zap.String("source", h.Name()), logger.Info)

	lsb := sensitivity[h.cfg.FullScale]
	read := func(now time.Time) ([]float64, error) {
		raw, err := readGyro(bus)
		if err != nil {
			return nil, err
		}
		return toRadians(raw, offset, lsb), nil
	}

	token := s.pollers.Start(h.Name(), interval, read, cb)
	s.mu.Lock()
	s.buses[token] = bus
	s.mu.Unlock()
	return token, nil
}

func (s *Source) Unregister(token sensor.Token) error {
	err := s.pollers.Stop(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	bus := s.buses[token]
	delete(s.buses, token)
	s.mu.Unlock()

	if bus != nil {
		return bus.Close()
	}
	return nil
}

func readGyro(bus Bus) ([3]int16, error) {
	var out [3]int16
	data, n, err := bus.ReadRegBytes(regGyroXOut, 6)
	if err != nil {
		return out, err
	}
	if n != 6 {
		return out, fmt.Errorf("short read: %d bytes", n)
	}
	return decode(data), nil
}

func decode(data []byte) [3]int16 {
	var out [3]int16
	for i := range out {
		out[i] = int16(uint16(data[i*2])<<8 | uint16(data[i*2+1]))
	}
	return out
}

func calibrate(bus Bus, samples int) ([3]float64, error) {
	var offset [3]float64
	for i := 0; i < samples; i++ {
		raw, err := readGyro(bus)
		if err != nil {
			return offset, err
		}
		for j, v := range raw {
			offset[j] += float64(v) / float64(samples)
		}
	}
	return offset, nil
}

func toRadians(raw [3]int16, offset [3]float64, lsb float64) []float64 {
	var values = make([]float64, len(raw))
	for i, v := range raw {
		values[i] = (float64(v) - offset[i]) / lsb * math.Pi / 180
	}
	return values
}
