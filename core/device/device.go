// Package device defines the hardware contracts the dosing controller drives.
//
// Drivers for real load cells, servo valves and pump outputs are provided by
// the host; infra/sim contains a simulated rig implementing every contract.
package device

// WeightSensor is a load cell returning smoothed readings in grams.
type WeightSensor interface {
	// Weight returns the averaged reading in grams.
	Weight() (float64, error)
	// Tare zeroes the sensor at the current load.
	Tare() error
	// Calibrate derives the scale factor from a known reference weight
	// currently placed on the sensor and returns it.
	Calibrate(knownWeight float64) (float64, error)
}

// Valve is an on/off actuator. Actuation is complete when Open or Close
// returns; IsOpen reports the last commanded position, not a sensed one.
type Valve interface {
	Open() error
	Close() error
	IsOpen() bool
	Name() string
}

// Pump is the single dosing pump shared by every line.
type Pump interface {
	On() error
	Off() error
	IsOn() bool
}
