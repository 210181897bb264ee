package bridge

import (
	"strconv"

	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
)

const unknownSerial = "UNKNOWN_SERIAL"

// Serial composes the meter serial as manufacturer-serial, falling back to the
// device id or the bare serial number.
func (b *Bridge) Serial() string {
	manufacturer, hasManufacturer := b.store.GetRaw(obis.Manufacturer)
	serial, hasSerial := b.store.GetRaw(obis.SerialNumber)
	switch {
	case hasManufacturer && hasSerial:
		return manufacturer + "-" + serial
	case hasManufacturer:
		return manufacturer
	}
	if deviceID, ok := b.store.GetRaw(obis.DeviceID); ok {
		return deviceID
	}
	if hasSerial {
		return serial
	}
	return unknownSerial
}

func (b *Bridge) Manufacturer() (string, bool) {
	return b.store.GetRaw(obis.Manufacturer)
}

func (b *Bridge) DeviceID() (string, bool) {
	return b.store.GetRaw(obis.DeviceID)
}

func (b *Bridge) FirmwareVersion() (string, bool) {
	return b.store.GetRaw(obis.FirmwareVersion)
}

// EnergyImport is the total imported energy in Wh.
func (b *Bridge) EnergyImport() (float64, bool) {
	return b.store.GetScaled(1, obis.ImportTotal)
}

func (b *Bridge) EnergyImportKwh() (float64, bool) {
	return b.store.GetScaled(1000, obis.ImportTotal)
}

// EnergyImportStatus is the SML status word of the import register.
func (b *Bridge) EnergyImportStatus() (uint64, bool) {
	entry, ok := b.store.Get(obis.ImportTotal)
	if !ok || entry.Status == nil {
		return 0, false
	}
	return *entry.Status, true
}

var tariffCodes = []obis.Code{obis.ImportTariff1, obis.ImportTariff2, obis.ImportTariff3, obis.ImportTariff4}

// EnergyImportTariff returns register 1.8.n in Wh, n from 1 to 4.
func (b *Bridge) EnergyImportTariff(n int, divisor float64) (float64, bool) {
	if n < 1 || n > len(tariffCodes) {
		return 0, false
	}
	return b.store.GetScaled(divisor, tariffCodes[n-1])
}

func (b *Bridge) EnergyExport() (float64, bool) {
	return b.store.GetScaled(1, obis.ExportTotal)
}

func (b *Bridge) EnergyExportKwh() (float64, bool) {
	return b.store.GetScaled(1000, obis.ExportTotal)
}

// Power is the current active power in W. Meters report it under several codes.
func (b *Bridge) Power() (float64, bool) {
	return b.store.GetScaled(1, obis.PowerActualAliases...)
}

// PhasePower returns the active power of phase 1 to 3.
func (b *Bridge) PhasePower(phase int) (float64, bool) {
	switch phase {
	case 1:
		return b.store.GetScaled(1, obis.PowerL1Aliases...)
	case 2:
		return b.store.GetScaled(1, obis.PowerL2Aliases...)
	case 3:
		return b.store.GetScaled(1, obis.PowerL3Aliases...)
	}
	return 0, false
}

func (b *Bridge) Voltage(phase int) (float64, bool) {
	return b.phaseValue(phase, obis.PotentialL1, obis.PotentialL2, obis.PotentialL3)
}

func (b *Bridge) Current(phase int) (float64, bool) {
	return b.phaseValue(phase, obis.CurrentL1, obis.CurrentL2, obis.CurrentL3)
}

func (b *Bridge) phaseValue(phase int, codes ...obis.Code) (float64, bool) {
	if phase < 1 || phase > len(codes) {
		return 0, false
	}
	return b.store.GetScaled(1, codes[phase-1])
}

func (b *Bridge) Frequency() (float64, bool) {
	return b.store.GetScaled(1, obis.NetFrequency)
}

// Readings lists the named values that are present, for API and MQTT output.
func (b *Bridge) Readings() map[string]float64 {
	out := map[string]float64{}
	add := func(name string, v float64, ok bool) {
		if ok {
			out[name] = v
		}
	}
	v, ok := b.EnergyImport()
	add("energy_import_wh", v, ok)
	v, ok = b.EnergyImportKwh()
	add("energy_import_kwh", v, ok)
	for n := 1; n <= len(tariffCodes); n++ {
		v, ok = b.EnergyImportTariff(n, 1)
		add("energy_import_t"+strconv.Itoa(n)+"_wh", v, ok)
	}
	v, ok = b.EnergyExport()
	add("energy_export_wh", v, ok)
	v, ok = b.EnergyExportKwh()
	add("energy_export_kwh", v, ok)
	v, ok = b.Power()
	add("power_w", v, ok)
	for phase := 1; phase <= 3; phase++ {
		suffix := "_l" + strconv.Itoa(phase)
		v, ok = b.PhasePower(phase)
		add("power"+suffix+"_w", v, ok)
		v, ok = b.Voltage(phase)
		add("voltage"+suffix+"_v", v, ok)
		v, ok = b.Current(phase)
		add("current"+suffix+"_a", v, ok)
	}
	v, ok = b.Frequency()
	add("frequency_hz", v, ok)
	for name, code := range map[string]obis.Code{
		"phase_angle_u1_u2": obis.PhaseU1U2,
		"phase_angle_u1_u3": obis.PhaseU1U3,
		"phase_angle_i1_u1": obis.PhaseI1U1,
		"phase_angle_i2_u2": obis.PhaseI2U2,
		"phase_angle_i3_u3": obis.PhaseI3U3,
	} {
		v, ok = b.store.GetScaled(1, code)
		add(name+"_deg", v, ok)
	}
	return out
}
