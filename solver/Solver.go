// Package solver implements the optimizers used to update actor and
// critic parameters: a managed Adam solver configured like Gorgonia's
// and holding its moments internally, and ClippedAdam, an Adam engine
// with global norm gradient clipping and explicit moment state. Solvers are wrapped so that they can be JSON
// serialized into configuration files.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam            Type = "Adam"
	ClippedAdamType Type = "ClippedAdam"
)

// Solver wraps solver configurations so that they can be JSON
// marshalled and unmarshalled. A Solver creates one Updater per
// parameter set that it optimizes.
type Solver struct {
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newSolver: %w", err)
	}

	return &Solver{Type: t, Config: c}, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Adam):            reflect.TypeOf(AdamConfig{}),
			string(ClippedAdamType): reflect.TypeOf(ClippedAdamConfig{}),
		})
	if err != nil {
		return err
	}

	if !config.ValidType(typeName) {
		return fmt.Errorf("unmarshalJSON: invalid solver type %v", typeName)
	}

	s.Type = typeName
	s.Config = config

	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := m[typeJsonField].(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalConfig: missing solver type")
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalConfig: unknown solver type %v",
			typeName)
	}
	value := reflect.New(ty).Interface()

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a solver configuration and can be used to create
// the Updaters they describe.
type Config interface {
	// Create returns a new Updater. If maximize is true, the Updater
	// performs gradient ascent on its objective.
	Create(maximize bool, log logrus.FieldLogger) Updater

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool

	// Validate returns an error describing whether or not the
	// configuration is valid
	Validate() error
}
