package gamepad

import "fmt"

// Mapping assigns joystick axes and buttons to the controls the vehicle
// uses. Defaults follow the xpad layout (Xbox and most clones).
type Mapping struct {
	LeftStickAxis      uint8 `yaml:"left_stick_axis" default:"1"`
	RightStickAxis     uint8 `yaml:"right_stick_axis" default:"4"`
	LeftTriggerButton  uint8 `yaml:"left_trigger_button" default:"4"`
	RightTriggerButton uint8 `yaml:"right_trigger_button" default:"5"`
	// AxisThreshold is the absolute axis value above which a stick counts as
	// pressed. Axis range is -32767..32767, up is negative.
	AxisThreshold int16 `yaml:"axis_threshold" default:"16384"`
}

// DefaultMapping returns the xpad layout.
func DefaultMapping() Mapping {
	return Mapping{
		LeftStickAxis:      1,
		RightStickAxis:     4,
		LeftTriggerButton:  4,
		RightTriggerButton: 5,
		AxisThreshold:      16384,
	}
}

// Validate checks the mapping for unusable values.
func (m Mapping) Validate() error {
	if m.AxisThreshold <= 0 {
		return fmt.Errorf("axis threshold must be positive, got %d", m.AxisThreshold)
	}
	if m.LeftStickAxis == m.RightStickAxis {
		return fmt.Errorf("left and right stick share axis %d", m.LeftStickAxis)
	}
	if m.LeftTriggerButton == m.RightTriggerButton {
		return fmt.Errorf("left and right trigger share button %d", m.LeftTriggerButton)
	}
	return nil
}
