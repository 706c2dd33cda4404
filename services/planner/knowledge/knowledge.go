// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge loads the planner's goals and actuation catalog from a
// YAML document.
//
// A document declares conditions, optimal conditions, actuators with their
// discrete states, and configurable parameters. Each actuator state and
// parameter declares how it moves observable properties; RelevantActions
// uses those declarations to offer only actions that can correct the
// currently violated conditions.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/valuehandler"
)

// Document is the YAML schema.
type Document struct {
	Conditions        []ConditionSpec `yaml:"conditions" validate:"dive"`
	OptimalConditions []ConditionSpec `yaml:"optimal_conditions" validate:"dive"`
	Actuators         []ActuatorSpec  `yaml:"actuators" validate:"dive"`
	Parameters        []ParameterSpec `yaml:"parameters" validate:"dive"`
}

// ConditionSpec declares a condition as an expression over `value`.
type ConditionSpec struct {
	Name             string `yaml:"name" validate:"required"`
	Property         string `yaml:"property" validate:"required"`
	Expression       string `yaml:"expression" validate:"required"`
	ValueType        string `yaml:"value_type"`
	ReachedInSeconds int64  `yaml:"reached_in_seconds" validate:"gte=0"`
}

// ActuatorSpec declares an actuator and its states.
type ActuatorSpec struct {
	Name      string       `yaml:"name" validate:"required"`
	StateType string       `yaml:"state_type"`
	States    []string     `yaml:"states" validate:"min=1"`
	Effects   []EffectSpec `yaml:"effects" validate:"dive"`
}

// ParameterSpec declares how raising a configurable parameter moves
// properties.
type ParameterSpec struct {
	Name    string       `yaml:"name" validate:"required"`
	Effects []EffectSpec `yaml:"effects" validate:"min=1,dive"`
}

// EffectSpec says that the owner moves Property in direction Effect. For
// actuators, When names the state that has the effect.
type EffectSpec struct {
	Property string `yaml:"property" validate:"required"`
	When     string `yaml:"when"`
	Effect   string `yaml:"effect" validate:"required,oneof=increase decrease"`
}

type effectRule struct {
	property string
	when     model.Value
	effect   model.Effect
}

type actuator struct {
	name    string
	states  []model.Value
	effects []effectRule
}

type parameter struct {
	name    string
	effects []effectRule
}

// compiled is an immutable, validated view of a Document.
type compiled struct {
	conditions []constraint.Condition
	optimal    []constraint.OptimalCondition
	actuators  []actuator
	parameters []parameter
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// compile validates doc and converts its expressions.
func compile(doc Document) (*compiled, error) {
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid knowledge document: %w", err)
	}
	out := &compiled{}
	for _, spec := range doc.Conditions {
		c, err := compileCondition(spec)
		if err != nil {
			return nil, err
		}
		out.conditions = append(out.conditions, c)
	}
	for _, spec := range doc.OptimalConditions {
		c, err := compileCondition(spec)
		if err != nil {
			return nil, err
		}
		out.optimal = append(out.optimal, constraint.OptimalCondition{Condition: c, ConstraintValueType: spec.ValueType})
	}
	for _, spec := range doc.Actuators {
		a, err := compileActuator(spec)
		if err != nil {
			return nil, err
		}
		out.actuators = append(out.actuators, a)
	}
	for _, spec := range doc.Parameters {
		p := parameter{name: spec.Name}
		for _, e := range spec.Effects {
			eff, err := model.ParseEffect(e.Effect)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", spec.Name, err)
			}
			p.effects = append(p.effects, effectRule{property: e.Property, effect: eff})
		}
		out.parameters = append(out.parameters, p)
	}
	return out, nil
}

func compileCondition(spec ConditionSpec) (constraint.Condition, error) {
	e, err := ParseExpression(spec.Expression)
	if err != nil {
		return constraint.Condition{}, fmt.Errorf("condition %s: %w", spec.Name, err)
	}
	return constraint.Condition{
		Name:                    spec.Name,
		Property:                spec.Property,
		Constraints:             []constraint.Expression{e},
		ReachedInMaximumSeconds: spec.ReachedInSeconds,
	}, nil
}

func compileActuator(spec ActuatorSpec) (actuator, error) {
	tag := spec.StateType
	if tag == "" {
		tag = model.OwlString
	}
	h, err := valuehandler.ForOwlType(tag)
	if err != nil {
		return actuator{}, fmt.Errorf("actuator %s: %w", spec.Name, err)
	}
	a := actuator{name: spec.Name}
	for _, s := range spec.States {
		v, err := h.Parse(s)
		if err != nil {
			return actuator{}, fmt.Errorf("actuator %s state %q: %w", spec.Name, s, err)
		}
		a.states = append(a.states, v)
	}
	for _, e := range spec.Effects {
		eff, err := model.ParseEffect(e.Effect)
		if err != nil {
			return actuator{}, fmt.Errorf("actuator %s: %w", spec.Name, err)
		}
		when, err := h.Parse(e.When)
		if err != nil {
			return actuator{}, fmt.Errorf("actuator %s effect state %q: %w", spec.Name, e.When, err)
		}
		if !hasState(a.states, when) {
			return actuator{}, fmt.Errorf("actuator %s: effect on undeclared state %q", spec.Name, e.When)
		}
		a.effects = append(a.effects, effectRule{property: e.Property, when: when, effect: eff})
	}
	return a, nil
}

func hasState(states []model.Value, v model.Value) bool {
	for _, s := range states {
		if s.Equal(v) {
			return true
		}
	}
	return false
}

// FileKnowledge serves a compiled document and can reload it from disk.
//
// Thread Safety: Safe for concurrent use. Reload swaps the compiled view
// atomically; readers see either the old or the new document.
type FileKnowledge struct {
	path string

	mu  sync.RWMutex
	doc *compiled
}

// Load reads and compiles the document at path.
func Load(path string) (*FileKnowledge, error) {
	k := &FileKnowledge{path: path}
	if err := k.Reload(); err != nil {
		return nil, err
	}
	return k, nil
}

// Parse compiles a document held in memory. Reload is a no-op for the
// result.
func Parse(data []byte) (*FileKnowledge, error) {
	c, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	return &FileKnowledge{doc: c}, nil
}

func parseDocument(data []byte) (*compiled, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode knowledge yaml: %w", err)
	}
	return compile(doc)
}

// Path returns the backing file, empty for parsed documents.
func (k *FileKnowledge) Path() string { return k.path }

// Reload re-reads the backing file. On error the previous document stays
// in effect.
func (k *FileKnowledge) Reload() error {
	if k.path == "" {
		return nil
	}
	data, err := os.ReadFile(k.path)
	if err != nil {
		return fmt.Errorf("read knowledge %s: %w", k.path, err)
	}
	c, err := parseDocument(data)
	if err != nil {
		return fmt.Errorf("knowledge %s: %w", k.path, err)
	}
	k.mu.Lock()
	k.doc = c
	k.mu.Unlock()
	return nil
}

func (k *FileKnowledge) current() *compiled {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.doc
}

// Conditions implements mapek.Knowledge.
func (k *FileKnowledge) Conditions(context.Context, *model.PropertyCache) ([]constraint.Condition, error) {
	return k.current().conditions, nil
}

// OptimalConditions implements mapek.Knowledge.
func (k *FileKnowledge) OptimalConditions(context.Context, *model.PropertyCache) ([]constraint.OptimalCondition, error) {
	return k.current().optimal, nil
}

// States implements simtree.ActuatorStates.
func (k *FileKnowledge) States(name string) []model.Value {
	for _, a := range k.current().actuators {
		if a.name == name {
			return a.states
		}
	}
	return nil
}

// Actuators returns the declared actuator names in document order.
func (k *FileKnowledge) Actuators() []string {
	doc := k.current()
	names := make([]string, len(doc.actuators))
	for i, a := range doc.actuators {
		names[i] = a.name
	}
	return names
}

var directions = []model.Effect{model.ValueIncrease, model.ValueDecrease}

// RelevantActions implements mapek.Knowledge.
//
// # Description
//
// Evaluates every condition against cache and collects the corrective
// effects of the violated atoms per property. An actuator is relevant when
// one of its states has a needed effect; all of its states are then
// offered so the planner can also weigh leaving it alone. A parameter is
// relevant when its declared effect, or the inverse, is needed; it is
// offered as a reconfiguration in the direction that produces the needed
// effect. Parameters missing from cache are skipped.
//
// # Outputs
//
//   - []model.Action: Actuations first, then reconfigurations, in
//     document order. Empty when nothing is violated.
//   - error: Evaluation errors such as constraint.ErrPropertyNotFound.
func (k *FileKnowledge) RelevantActions(_ context.Context, cache *model.PropertyCache) ([]model.Action, error) {
	doc := k.current()
	needs, err := correctiveNeeds(doc.conditions, cache)
	if err != nil {
		return nil, err
	}
	if len(needs) == 0 {
		return nil, nil
	}

	var out []model.Action
	for _, a := range doc.actuators {
		relevant := false
		for _, r := range a.effects {
			if needs[r.property][r.effect] {
				relevant = true
				break
			}
		}
		if !relevant {
			continue
		}
		for _, s := range a.states {
			out = append(out, model.NewActuation(a.name+":"+s.String(), a.name, s))
		}
	}

	for _, p := range doc.parameters {
		if _, ok := cache.Parameter(p.name); !ok {
			continue
		}
		offered := map[model.Effect]bool{}
		for _, r := range p.effects {
			for _, want := range directions {
				if !needs[r.property][want] {
					continue
				}
				dir := model.ValueIncrease
				if r.effect.Sign()*want.Sign() < 0 {
					dir = model.ValueDecrease
				}
				if offered[dir] {
					continue
				}
				offered[dir] = true
				out = append(out, model.NewReconfiguration(p.name+":"+dir.String(), p.name, model.Value{}, dir))
			}
		}
	}
	return out, nil
}

func correctiveNeeds(conds []constraint.Condition, cache *model.PropertyCache) (map[string]map[model.Effect]bool, error) {
	needs := map[string]map[model.Effect]bool{}
	for _, c := range conds {
		res, err := constraint.EvaluateCondition(c, cache)
		if err != nil {
			return nil, err
		}
		if res.Satisfied {
			continue
		}
		prop, _ := cache.Lookup(c.Property)
		h, err := valuehandler.ForProperty(prop)
		if err != nil {
			return nil, err
		}
		for _, atom := range res.Unsatisfied {
			effects, err := constraint.CorrectiveEffects(atom, prop.Value, h)
			if err != nil {
				return nil, fmt.Errorf("condition %s: %w", c.Name, err)
			}
			for _, e := range effects {
				if needs[c.Property] == nil {
					needs[c.Property] = map[model.Effect]bool{}
				}
				needs[c.Property][e] = true
			}
		}
	}
	return needs, nil
}
