package display

import "github.com/d2r2/go-hd44780"

type ScreenConfig struct {
	Enabled     bool
	LcdType     hd44780.LcdType
	Bus         int
	Address     uint8
	UpdateRate  int // refreshes per second
	ExitMessage [4]string
}

func (s *ScreenConfig) HaveExitMessage() bool {
	for _, v := range s.ExitMessage {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

// Size returns columns and rows of the configured panel.
func (s *ScreenConfig) Size() (int, int) {
	if s.LcdType == hd44780.LCD_16x2 {
		return 16, 2
	}
	return 20, 4
}

// ParseLcdType accepts panel types used in the configuration file, like "20x4".
func ParseLcdType(s string) (hd44780.LcdType, bool) {
	switch s {
	case "16x2":
		return hd44780.LCD_16x2, true
	case "20x4":
		return hd44780.LCD_20x4, true
	default:
		return hd44780.LCD_20x4, false
	}
}
