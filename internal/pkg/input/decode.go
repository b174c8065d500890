package input

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

const DevicesPath = "/proc/bus/input/devices"

// ReadHandlers parses handlers from a file in /proc/bus/input/devices format.
// Note: there is non-zero probability that returned list may be incomplete, handlers may come and go
// while the kernel renders the file.
func ReadHandlers(path string) ([]DeviceInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	di, err := unmarshal(data)
	if err != nil {
		return nil, err
	}

	return di, nil
}

// zeroHexPadUint16 prepares string to be used by hex.DecodeString()
func zeroHexPadUint16(s string) string {
	return fmt.Sprintf("%04s", s)
}

// unmarshal parses /proc/bus/input/devices file
func unmarshal(data []byte) ([]DeviceInfo, error) {
	var devices = make([]DeviceInfo, 0)

	if len(data) == 0 {
		return devices, nil
	}

	var device = newDeviceInfo()
	var pending bool

	for _, line := range strings.Split(string(data), "\n") {
		if len(line) < 3 {
			if pending {
				devices = append(devices, device)
				device = newDeviceInfo()
				pending = false
			}
			continue
		}
		pending = true

		label := line[:1]
		info := line[3:]

		switch label {
		case "I":
			ps := reflect.ValueOf(&device.ID)
			s := ps.Elem()

			for _, param := range strings.Fields(info) {
				fields := strings.SplitN(param, "=", 2)
				if len(fields) != 2 {
					return devices, fmt.Errorf("malformed id parameter: \"%s\"", param)
				}
				l, v := fields[0], fields[1]
				f := s.FieldByName(l)
				if !f.IsValid() {
					continue
				}

				hv, err := hex.DecodeString(zeroHexPadUint16(v))
				if err != nil {
					return devices, fmt.Errorf("hex decoding failed: %v", err)
				}
				uv := binary.BigEndian.Uint16(hv)

				f.SetUint(uint64(uv))
			}
		case "N":
			device.Name = strings.Trim(strings.TrimPrefix(info, "Name="), "\"")
		case "P":
			device.Phys = strings.TrimPrefix(info, "Phys=")
		case "S":
			device.Sysfs = strings.TrimPrefix(info, "Sysfs=")
		case "U":
			device.Uniq = strings.TrimPrefix(info, "Uniq=")
		case "H":
			device.Handlers = strings.Fields(strings.TrimPrefix(info, "Handlers="))
		case "B":
			fields := strings.SplitN(info, "=", 2)
			if len(fields) != 2 {
				return devices, fmt.Errorf("malformed bitmap: \"%s\"", info)
			}
			words := strings.Fields(fields[1])
			// kernel prints the most significant long first
			bitmap := make([]uint64, len(words))
			for i, w := range words {
				v, err := strconv.ParseUint(w, 16, 64)
				if err != nil {
					return devices, fmt.Errorf("hex decoding failed: %v", err)
				}
				bitmap[len(words)-1-i] = v
			}
			device.Bitmaps[fields[0]] = bitmap
		}
	}

	if pending {
		devices = append(devices, device)
	}

	return devices, nil
}
