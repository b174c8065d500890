package main

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/display"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/profile"
	"github.com/gethiox/gyrostream/internal/pkg/sink/mqtt"
	"github.com/go-ini/ini"
)

type GyroStream struct {
	SamplingInterval time.Duration // zero keeps sensor.NormalInterval
	LogViewRate      time.Duration
	LogBufferSize    int
	Profile          string
}

type MQTTConfig struct {
	Enabled bool
	mqtt.Config
}

type Config struct {
	GyroStream GyroStream
	Screen     display.ScreenConfig
	MQTT       MQTTConfig
}

// rate converts a frequency key in Hz into an interval, missing or zero rate yields zero.
func rate(key *ini.Key) (time.Duration, error) {
	if key.String() == "" {
		return 0, nil
	}
	i, err := key.Int()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key.Name(), err)
	}
	if i < 0 {
		return 0, fmt.Errorf("%s: negative rate: %d", key.Name(), i)
	}
	if i == 0 {
		return 0, nil
	}
	return time.Second / time.Duration(i), nil
}

func LoadConfig(path string) (Config, error) {
	var c Config

	cfg, err := ini.Load(path)
	if err != nil {
		return c, fmt.Errorf("loading config failed: %w", err)
	}

	// [gyrostream]
	gs := cfg.Section("gyrostream")
	c.GyroStream.SamplingInterval, err = rate(gs.Key("sampling_rate"))
	if err != nil {
		return c, err
	}
	c.GyroStream.LogViewRate, err = rate(gs.Key("log_view_rate"))
	if err != nil {
		return c, err
	}
	if c.GyroStream.LogViewRate == 0 {
		c.GyroStream.LogViewRate = time.Second / 30
	}
	c.GyroStream.LogBufferSize = gs.Key("log_buffer_size").MustInt(1000)
	c.GyroStream.Profile = gs.Key("profile").MustString("default")

	// [screen]
	screen := cfg.Section("screen")
	c.Screen.Enabled, err = screen.Key("enabled").Bool()
	if err != nil {
		return c, fmt.Errorf("screen enabled: %w", err)
	}

	lcdType, ok := display.ParseLcdType(screen.Key("type").MustString("20x4"))
	if !ok {
		return c, fmt.Errorf("unsupported screen type: \"%s\"", screen.Key("type").String())
	}
	c.Screen.LcdType = lcdType

	c.Screen.Bus, err = screen.Key("bus").Int()
	if err != nil {
		return c, fmt.Errorf("screen bus: %w", err)
	}
	address, err := screen.Key("address").Int()
	if err != nil {
		return c, fmt.Errorf("screen address: %w", err)
	}
	c.Screen.Address = uint8(address)
	c.Screen.UpdateRate = screen.Key("update_rate").MustInt(1)
	if c.Screen.UpdateRate < 1 {
		c.Screen.UpdateRate = 1
	}
	for i := range c.Screen.ExitMessage {
		c.Screen.ExitMessage[i] = screen.Key(fmt.Sprintf("exit_message%d", i+1)).String()
	}

	// [mqtt]
	m := cfg.Section("mqtt")
	c.MQTT.Enabled = m.Key("enabled").MustBool(false)
	c.MQTT.Broker = m.Key("broker").MustString("tcp://localhost:1883")
	c.MQTT.ClientID = m.Key("client_id").MustString("gyrostream")
	c.MQTT.TopicPrefix = m.Key("topic_prefix").MustString("gyrostream")
	qos := m.Key("qos").MustInt(0)
	if qos < 0 || qos > 2 {
		return c, fmt.Errorf("mqtt qos out of range: %d", qos)
	}
	c.MQTT.QoS = byte(qos)

	return c, nil
}

//go:embed gyrostream-config/gyrostream.config
//go:embed gyrostream-config/*/*/*
var templateConfig embed.FS

const (
	configDir   = "gyrostream-config"
	configFile  = "gyrostream.config"
	profilesDir = "profiles"
	factoryDir  = "factory"
)

// loadProfile prefers a user profile over the factory one of the same name.
func loadProfile(base, name string) (profile.Profile, error) {
	dir := filepath.Join(base, configDir, profilesDir)
	user := profile.Path(dir, name)
	_, err := os.Stat(user)
	if err == nil {
		return profile.Load(user)
	}
	return profile.Load(profile.Path(filepath.Join(dir, factoryDir), name))
}

func writeTemplate(templates fs.FS, path, dst string) error {
	data, err := fs.ReadFile(templates, path)
	if err != nil {
		return fmt.Errorf("cannot read \"%s\" template file: %w", path, err)
	}

	err = os.WriteFile(dst, data, 0o666)
	if err != nil {
		return fmt.Errorf("cannot write data into \"%s\" file: %w", dst, err)
	}
	return nil
}

// createConfigDirectoryIfNeeded creates config directory under base if necessary.
// It also updates factory profiles, gyrostream.config and user profiles stay intact.
func createConfigDirectoryIfNeeded(templates fs.FS, base string) error {
	cdir, err := os.Open(filepath.Join(base, configDir))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cannot open config directory: %v", err)
		}
		log.Info("config not exist, generating tree...", logger.Info)

		// create config subdirectories and files
		err = fs.WalkDir(templates, configDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			dst := filepath.Join(base, path)
			if d.IsDir() {
				err := os.Mkdir(dst, 0o777)
				if err != nil {
					return fmt.Errorf("cannot create \"%s\" directory: %w", dst, err)
				}
				return nil
			}

			err = writeTemplate(templates, path, dst)
			if err != nil {
				return err
			}
			log.Info(fmt.Sprintf("Created \"%s\" file", dst), logger.Debug)
			return nil
		})
		if err != nil {
			return fmt.Errorf("config generation failed: %w", err)
		}

		log.Info("config generation done", logger.Info)
		return nil
	}
	cdir.Close()

	// update factory profiles
	factory := filepath.ToSlash(filepath.Join(configDir, profilesDir, factoryDir))
	err = fs.WalkDir(templates, factory, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		dst := filepath.Join(base, path)
		if entry.IsDir() {
			// ensure directories exists
			err := os.MkdirAll(dst, 0o777)
			if err != nil {
				return fmt.Errorf("cannot create \"%s\" directory: %w", dst, err)
			}
			return nil
		}

		src, err := os.Open(dst)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("cannot open \"%s\" file: %v", dst, err)
			}
			log.Info(fmt.Sprintf("Creating new factory profile: \"%s\"", dst), logger.Debug)
			return writeTemplate(templates, path, dst)
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			return fmt.Errorf("cannot read \"%s\" file: %w", dst, err)
		}

		newData, err := fs.ReadFile(templates, path)
		if err != nil {
			return fmt.Errorf("cannot open \"%s\" file template: %w", path, err)
		}

		if bytes.Equal(data, newData) {
			log.Info(fmt.Sprintf("File \"%s\" not changed", dst), logger.Debug)
			return nil
		}
		log.Info(fmt.Sprintf("File \"%s\" changed, replacing data...", dst), logger.Debug)
		return writeTemplate(templates, path, dst)
	})
	if err != nil {
		return fmt.Errorf("update factory profiles failed: %w", err)
	}
	return nil
}
