package display

import (
	"fmt"
	"sync"

	device "github.com/d2r2/go-hd44780"
	"github.com/d2r2/go-i2c"
	i2cLogger "github.com/d2r2/go-logger"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Blocks are bar glyphs loaded into the LCD character generator, lowest first.
var Blocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// glyphs of the exit message character set
const (
	Spin  = '↻'
	Check = '✓'
)

var barChars = [][]byte{
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x1F}, // "▁"
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x1F, 0x1F}, // "▂"
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x1F, 0x1F, 0x1F}, // "▃"
	{0x00, 0x00, 0x00, 0x00, 0x1F, 0x1F, 0x1F, 0x1F}, // "▄"
	{0x00, 0x00, 0x00, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F}, // "▅"
	{0x00, 0x00, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F}, // "▆"
	{0x00, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F}, // "▇"
	{0x1F, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F, 0x1F}, // "█"
}

var exitChars = [][]byte{
	{0x00, 0x0D, 0x13, 0x17, 0x10, 0x11, 0x0E, 0x00}, // "↻"
	{0x00, 0x01, 0x03, 0x16, 0x1C, 0x08, 0x00, 0x00}, // "✓"
}

func getDisplay(addr uint8, bus int, lcdType device.LcdType) (*device.Lcd, *i2c.I2C, error) {
	i2cLogger.ChangePackageLogLevel("i2c", i2cLogger.InfoLevel)
	i2cLogger.ChangePackageLogLevel("hd44780", i2cLogger.InfoLevel)

	lcdRaw, err := i2c.NewI2C(addr, bus)
	if err != nil {
		return nil, nil, err
	}

	lcd, err := device.NewLcd(lcdRaw, lcdType)
	if err != nil {
		return nil, lcdRaw, err
	}

	return lcd, lcdRaw, nil
}

func loadCustomCharacters(lcd *device.Lcd, characters [][]byte) {
	for i, char := range characters {
		var location = uint8(i) & 0x7

		lcd.Command(device.CMD_CGRAM_Set | (location << 3))
		lcd.Write(char)
	}
}

var conversionMap = map[rune]byte{
	'▁':   0,
	'▂':   1,
	'▃':   2,
	'▄':   3,
	'▅':   4,
	'▆':   5,
	'▇':   6,
	'█':   7,
	Spin:  0,
	Check: 1,
}

// replaceCharsForDisplay maps glyphs to character generator slots, the active set decides the look.
func replaceCharsForDisplay(s string) string {
	var ns []byte
	for _, r := range s {
		n, ok := conversionMap[r]
		if ok {
			ns = append(ns, n)
			continue
		}
		if r > 0x7f {
			ns = append(ns, '?')
			continue
		}
		ns = append(ns, byte(r))
	}
	return string(ns)
}

type DisplayData struct {
	Lines   [4]string
	LastMsg bool // exit message uses a different custom character set
}

func writeLines(lcd *device.Lcd, rows int, lines [4]string) {
	for i, s := range lines {
		if i >= rows {
			break
		}
		lcd.SetPosition(i, 0)
		lcd.Write([]byte(replaceCharsForDisplay(s)))
	}
}

func HandleDisplay(wg *sync.WaitGroup, cfg ScreenConfig, dd <-chan DisplayData) {
	defer wg.Done()
	lcd, bus, err := getDisplay(cfg.Address, cfg.Bus, cfg.LcdType)
	if err != nil {
		log.Info(fmt.Sprintf("display initialization failed: %v", err),
			zap.Int("bus", cfg.Bus), zap.Uint8("address", cfg.Address), logger.Warning)
		if bus != nil {
			bus.Close()
		}
		for range dd {
		}
		return
	}

	_, rows := cfg.Size()

	loadCustomCharacters(lcd, barChars)

	lcd.BacklightOn()
	lcd.Clear()

	for data := range dd {
		if data.LastMsg {
			loadCustomCharacters(lcd, exitChars)
			lcd.Clear()
		}
		writeLines(lcd, rows, data.Lines)
	}

	bus.Close()
	log.Info("display closed", logger.Debug)
}
