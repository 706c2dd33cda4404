// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package twin provides an in-process digital twin of a single thermal
// zone.
//
// ThermalModel is a first-order room model: indoor temperature leaks
// toward the outdoor temperature, a heater and a cooler add or remove heat
// at fixed power, and a fan mixes outdoor air in proportion to its speed.
// Energy drawn by all three is accumulated. The model implements
// simtree.Stepper, so the planner can simulate candidate actions against
// it, and Twin wraps it as a live zone for the control loop.
package twin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// Default names of the zone's properties, actuators and parameters.
const (
	PropertyTemperature = "temperature"
	PropertyEnergy      = "energy_kwh"
	ActuatorHeater      = "heater"
	ActuatorCooler      = "cooler"
	ParameterFanSpeed   = "fan_speed"

	StateOn  = "on"
	StateOff = "off"
)

// ErrMissingTemperature is returned when the snapshot has no usable
// temperature property.
var ErrMissingTemperature = errors.New("snapshot has no numeric temperature")

// ThermalConfig holds the physical constants of the zone.
type ThermalConfig struct {
	// OutdoorTemperature is the ambient temperature in degrees Celsius.
	OutdoorTemperature float64 `yaml:"outdoor_temperature" json:"outdoor_temperature"`

	// LeakRate is the fraction of the indoor/outdoor difference lost per
	// second through the envelope.
	LeakRate float64 `yaml:"leak_rate" json:"leak_rate" validate:"gte=0,lt=1"`

	// VentRate is the fraction of the difference exchanged per second
	// with the fan at 100%.
	VentRate float64 `yaml:"vent_rate" json:"vent_rate" validate:"gte=0,lt=1"`

	HeaterPowerW float64 `yaml:"heater_power_w" json:"heater_power_w" validate:"gte=0"`
	CoolerPowerW float64 `yaml:"cooler_power_w" json:"cooler_power_w" validate:"gte=0"`
	FanPowerW    float64 `yaml:"fan_power_w" json:"fan_power_w" validate:"gte=0"`

	// DegreesPerKWh is the temperature change produced by one kWh of
	// heating or cooling.
	DegreesPerKWh float64 `yaml:"degrees_per_kwh" json:"degrees_per_kwh" validate:"gt=0"`

	// Integration is the internal integration step.
	Integration time.Duration `yaml:"integration" json:"integration" validate:"gt=0"`
}

// DefaultThermalConfig returns constants for a small office in winter.
func DefaultThermalConfig() ThermalConfig {
	return ThermalConfig{
		OutdoorTemperature: 5,
		LeakRate:           0.00005,
		VentRate:           0.0002,
		HeaterPowerW:       2000,
		CoolerPowerW:       1500,
		FanPowerW:          120,
		DegreesPerKWh:      2,
		Integration:        10 * time.Second,
	}
}

// ThermalModel advances a zone snapshot through time.
//
// Thread Safety: Safe for concurrent use; the model is immutable.
type ThermalModel struct {
	cfg ThermalConfig
}

// NewThermalModel creates a model. A non-positive integration step falls
// back to the default.
func NewThermalModel(cfg ThermalConfig) *ThermalModel {
	if cfg.Integration <= 0 {
		cfg.Integration = DefaultThermalConfig().Integration
	}
	return &ThermalModel{cfg: cfg}
}

// Config returns the model constants.
func (m *ThermalModel) Config() ThermalConfig { return m.cfg }

// zoneState is the mutable view of a snapshot during integration.
type zoneState struct {
	temperature float64
	energy      float64
	heater      bool
	cooler      bool
	fan         float64
}

// Step implements simtree.Stepper.
//
// # Description
//
// Applies actions to the snapshot, then integrates the zone for duration.
// Actuations on the heater or cooler switch them; a reconfiguration of
// the fan speed sets it. Actions on unknown targets are ignored. The
// returned snapshot carries the new temperature, the accumulated energy
// when the snapshot tracks it, and the actuator and fan values in effect.
//
// # Outputs
//
//   - *model.PropertyCache: The snapshot after duration.
//   - error: ErrMissingTemperature, a kind mismatch on write-back, or
//     ctx.Err().
func (m *ThermalModel) Step(ctx context.Context, cache *model.PropertyCache, actions []model.Action, duration time.Duration) (*model.PropertyCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := readState(cache)
	if err != nil {
		return nil, err
	}
	s.apply(actions)
	m.integrate(&s, duration)
	return s.write(cache, actions)
}

func readState(cache *model.PropertyCache) (zoneState, error) {
	var s zoneState
	temp, ok := cache.Property(PropertyTemperature)
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrMissingTemperature, PropertyTemperature)
	}
	t, ok := temp.Value.Numeric()
	if !ok {
		return s, fmt.Errorf("%w: %s is %s", ErrMissingTemperature, PropertyTemperature, temp.Value.Kind())
	}
	s.temperature = t
	if e, ok := cache.Property(PropertyEnergy); ok {
		s.energy, _ = e.Value.Numeric()
	}
	if h, ok := cache.Property(ActuatorHeater); ok {
		s.heater = isOn(h.Value)
	}
	if c, ok := cache.Property(ActuatorCooler); ok {
		s.cooler = isOn(c.Value)
	}
	if f, ok := cache.Lookup(ParameterFanSpeed); ok {
		s.fan, _ = f.Value.Numeric()
	}
	return s, nil
}

func isOn(v model.Value) bool {
	switch v.Kind() {
	case model.KindBool:
		return v.Bool()
	case model.KindString:
		return v.Text() == StateOn
	default:
		return false
	}
}

func (s *zoneState) apply(actions []model.Action) {
	for _, a := range actions {
		switch {
		case a.Kind == model.Actuation && a.Target == ActuatorHeater:
			s.heater = isOn(a.Value)
		case a.Kind == model.Actuation && a.Target == ActuatorCooler:
			s.cooler = isOn(a.Value)
		case a.Kind == model.Reconfiguration && a.Target == ParameterFanSpeed:
			if f, ok := a.Value.Numeric(); ok {
				s.fan = f
			}
		}
	}
}

// integrate advances s with explicit Euler steps of cfg.Integration.
func (m *ThermalModel) integrate(s *zoneState, duration time.Duration) {
	remaining := duration
	for remaining > 0 {
		step := min(m.cfg.Integration, remaining)
		remaining -= step
		dt := step.Seconds()
		hours := step.Hours()

		s.temperature += m.cfg.LeakRate * (m.cfg.OutdoorTemperature - s.temperature) * dt
		if s.heater {
			kwh := m.cfg.HeaterPowerW / 1000 * hours
			s.temperature += kwh * m.cfg.DegreesPerKWh
			s.energy += kwh
		}
		if s.cooler {
			kwh := m.cfg.CoolerPowerW / 1000 * hours
			s.temperature -= kwh * m.cfg.DegreesPerKWh
			s.energy += kwh
		}
		fan := math.Max(0, math.Min(100, s.fan)) / 100
		s.temperature += (m.cfg.OutdoorTemperature - s.temperature) * fan * m.cfg.VentRate * dt
		s.energy += m.cfg.FanPowerW * fan / 1000 * hours
	}
}

func (s zoneState) write(cache *model.PropertyCache, actions []model.Action) (*model.PropertyCache, error) {
	b := cache.Edit().SetValue(PropertyTemperature, model.DoubleValue(s.temperature))
	if e, ok := cache.Property(PropertyEnergy); ok && e.Value.Kind() == model.KindDouble {
		b.SetValue(PropertyEnergy, model.DoubleValue(s.energy))
	}
	for _, a := range actions {
		if _, ok := cache.Lookup(a.Target); ok && a.Value.IsValid() {
			b.SetValue(a.Target, a.Value)
		}
	}
	return b.Build()
}
