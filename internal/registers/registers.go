package registers

import "fmt"

// Kind is the wire encoding of a register block.
type Kind int

const (
	KindString Kind = iota
	KindU16
	KindI16
	KindU32
	KindI32
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindU16:
		return "u16"
	case KindI16:
		return "i16"
	case KindU32:
		return "u32"
	case KindI32:
		return "i32"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Register describes one readable quantity of the inverter. Address is the
// holding register start address as documented by Huawei (no -1 offset).
type Register struct {
	Name    string
	Address uint16
	Words   uint16
	Kind    Kind
	Gain    uint32
	Unit    string
}

// Validate checks the width invariant between Kind and Words.
func (r Register) Validate() error {
	if r.Gain < 1 {
		return fmt.Errorf("register %s: gain must be >= 1", r.Name)
	}
	switch r.Kind {
	case KindString:
		if r.Words < 1 {
			return fmt.Errorf("register %s: string needs at least one word", r.Name)
		}
	case KindU16, KindI16:
		if r.Words != 1 {
			return fmt.Errorf("register %s: %s needs 1 word, has %d", r.Name, r.Kind, r.Words)
		}
	case KindU32, KindI32:
		if r.Words != 2 {
			return fmt.Errorf("register %s: %s needs 2 words, has %d", r.Name, r.Kind, r.Words)
		}
	default:
		return fmt.Errorf("register %s: unknown kind %s", r.Name, r.Kind)
	}
	return nil
}

// Huawei SUN2000 holding registers
var (
	// Device information
	ModelName    = Register{Name: "model_name", Address: 30000, Words: 15, Kind: KindString, Gain: 1}
	SerialNumber = Register{Name: "serial_number", Address: 30015, Words: 10, Kind: KindString, Gain: 1}

	// DC side
	InputPower = Register{Name: "input_power", Address: 32064, Words: 2, Kind: KindI32, Gain: 1, Unit: "W"}

	// Grid voltages, 0.1V
	GridVoltage   = Register{Name: "grid_voltage", Address: 32066, Words: 1, Kind: KindU16, Gain: 10, Unit: "V"}
	LineVoltageAB = Register{Name: "line_voltage_a_b", Address: 32066, Words: 1, Kind: KindU16, Gain: 10, Unit: "V"}
	LineVoltageBC = Register{Name: "line_voltage_b_c", Address: 32067, Words: 1, Kind: KindU16, Gain: 10, Unit: "V"}
	LineVoltageCA = Register{Name: "line_voltage_c_a", Address: 32068, Words: 1, Kind: KindU16, Gain: 10, Unit: "V"}
	PhaseAVoltage = Register{Name: "phase_a_voltage", Address: 32069, Words: 1, Kind: KindU16, Gain: 10, Unit: "V"}
	PhaseBVoltage = Register{Name: "phase_b_voltage", Address: 32070, Words: 1, Kind: KindU16, Gain: 10, Unit: "V"}
	PhaseCVoltage = Register{Name: "phase_c_voltage", Address: 32071, Words: 1, Kind: KindU16, Gain: 10, Unit: "V"}

	// Grid currents, 0.001A
	GridCurrent   = Register{Name: "grid_current", Address: 32072, Words: 2, Kind: KindI32, Gain: 1000, Unit: "A"}
	PhaseACurrent = Register{Name: "phase_a_current", Address: 32072, Words: 2, Kind: KindI32, Gain: 1000, Unit: "A"}
	PhaseBCurrent = Register{Name: "phase_b_current", Address: 32074, Words: 2, Kind: KindI32, Gain: 1000, Unit: "A"}
	PhaseCCurrent = Register{Name: "phase_c_current", Address: 32076, Words: 2, Kind: KindI32, Gain: 1000, Unit: "A"}

	// Power
	DayActivePowerPeak = Register{Name: "day_active_power_peak", Address: 32078, Words: 2, Kind: KindI32, Gain: 1, Unit: "W"}
	ActivePower        = Register{Name: "active_power", Address: 32080, Words: 2, Kind: KindI32, Gain: 1, Unit: "W"}
	ReactivePower      = Register{Name: "reactive_power", Address: 32082, Words: 2, Kind: KindI32, Gain: 1, Unit: "VA"}
	PowerFactor        = Register{Name: "power_factor", Address: 32084, Words: 1, Kind: KindI16, Gain: 1000}
	GridFrequency      = Register{Name: "grid_frequency", Address: 32085, Words: 1, Kind: KindU16, Gain: 100, Unit: "Hz"}
	Efficiency         = Register{Name: "efficiency", Address: 32086, Words: 1, Kind: KindU16, Gain: 100, Unit: "%"}

	// Status
	InternalTemperature  = Register{Name: "internal_temperature", Address: 32087, Words: 1, Kind: KindI16, Gain: 10, Unit: "°C"}
	InsulationResistance = Register{Name: "insulation_resistance", Address: 32088, Words: 1, Kind: KindU16, Gain: 100, Unit: "MOhm"}
	DeviceStatus         = Register{Name: "device_status", Address: 32089, Words: 1, Kind: KindU16, Gain: 1}

	// Inverter-local epoch seconds, see TimeZone
	StartupTime  = Register{Name: "startup_time", Address: 32091, Words: 2, Kind: KindU32, Gain: 1, Unit: "s"}
	ShutdownTime = Register{Name: "shutdown_time", Address: 32093, Words: 2, Kind: KindU32, Gain: 1, Unit: "s"}

	// Energy, 0.01kWh
	AccumulatedYieldEnergy = Register{Name: "accumulated_yield_energy", Address: 32106, Words: 2, Kind: KindU32, Gain: 100, Unit: "kWh"}
	DailyYieldEnergy       = Register{Name: "daily_yield_energy", Address: 32114, Words: 2, Kind: KindU32, Gain: 100, Unit: "kWh"}

	// Signed offset from UTC in minutes
	TimeZone = Register{Name: "time_zone", Address: 43006, Words: 1, Kind: KindI16, Gain: 1, Unit: "min"}
)

// catalog holds every register in the order they are read for "all".
var catalog = []Register{
	ModelName,
	SerialNumber,
	InputPower,
	GridVoltage,
	LineVoltageAB,
	LineVoltageBC,
	LineVoltageCA,
	PhaseAVoltage,
	PhaseBVoltage,
	PhaseCVoltage,
	GridCurrent,
	PhaseACurrent,
	PhaseBCurrent,
	PhaseCCurrent,
	DayActivePowerPeak,
	ActivePower,
	ReactivePower,
	PowerFactor,
	GridFrequency,
	Efficiency,
	InternalTemperature,
	InsulationResistance,
	DeviceStatus,
	StartupTime,
	ShutdownTime,
	AccumulatedYieldEnergy,
	DailyYieldEnergy,
	TimeZone,
}

var byName = func() map[string]Register {
	m := make(map[string]Register, len(catalog))
	for _, r := range catalog {
		m[r.Name] = r
	}
	return m
}()

// Catalog returns a copy of the full register catalog, time_zone included.
func Catalog() []Register {
	out := make([]Register, len(catalog))
	copy(out, catalog)
	return out
}

// All returns the registers selected by the "all" keyword: the catalog in
// order, without time_zone which is only read for timestamp correction.
func All() []Register {
	out := make([]Register, 0, len(catalog)-1)
	for _, r := range catalog {
		if r.Name == TimeZone.Name {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Lookup finds a register by its name.
func Lookup(name string) (Register, bool) {
	r, ok := byName[name]
	return r, ok
}
