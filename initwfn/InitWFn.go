// Package initwfn implements functionality to wrap Gorgonia InitWFn
// so that they can be JSON serialized into configuration files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU Type = "GlorotU"
	GlorotN Type = "GlorotN"
	Zeroes  Type = "Zeroes"
	Ones    Type = "Ones"
	NormC   Type = "NormC"
)

var registeredTypes = map[string]reflect.Type{
	string(GlorotU): reflect.TypeOf(GlorotUConfig{}),
	string(GlorotN): reflect.TypeOf(GlorotNConfig{}),
	string(Zeroes):  reflect.TypeOf(ZeroesConfig{}),
	string(Ones):    reflect.TypeOf(OnesConfig{}),
	string(NormC):   reflect.TypeOf(NormCConfig{}),
}

// InitWFn wraps Gorgonia InitWFn so that they can be JSON marshalled and
// unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn
func newInitWFn(c Config) (*InitWFn, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newInitWFn: %w", err)
	}

	init := InitWFn{Type: c.Type(), Config: c}
	init.initWFn = init.Config.Create()

	return &init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (i *InitWFn) InitWFn() G.InitWFn {
	return i.initWFn
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(data, "Type", "Config",
		registeredTypes)
	if err != nil {
		return err
	}
	if config.Type() != typeName {
		return fmt.Errorf("unmarshalJSON: config of type %v cannot create "+
			"initializer of type %v", config.Type(), typeName)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("unmarshalJSON: %w", err)
	}

	i.Type = typeName
	i.Config = config
	i.initWFn = i.Config.Create()

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
		return nil, "", fmt.Errorf("unmarshalConfig: missing initializer type")
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalConfig: unknown initializer "+
			"type %v", typeName)
	}
	value := reflect.New(ty).Interface()

	// Configs without fields may be stored without a value
	if raw, ok := m[valueJsonField]; ok && raw != nil {
		valueBytes, err := json.Marshal(raw)
		if err != nil {
			return nil, "", err
		}

		if err = json.Unmarshal(valueBytes, value); err != nil {
			return nil, "", err
		}
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type

	// Validate returns an error describing whether or not the
	// configuration is valid
	Validate() error
}

// New returns the InitWFn of the given type with default
// hyperparameters: unit gain for Glorot initializers and a 0.01 scale
// for NormC.
func New(t Type, seed uint64) (*InitWFn, error) {
	switch t {
	case GlorotU:
		return NewGlorotU(1.0)
	case GlorotN:
		return NewGlorotN(1.0)
	case Zeroes:
		return NewZeroes()
	case Ones:
		return NewOnes()
	case NormC:
		return NewNormC(DefaultNormCStd, seed)
	default:
		return nil, fmt.Errorf("new: unknown initializer type %v", t)
	}
}
