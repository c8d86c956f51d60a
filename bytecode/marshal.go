package bytecode

import (
	"encoding/json"
	"fmt"
)

// FormatVersion is the version of the serialized bytecode format.
const FormatVersion = 1

// Marshal converts a Code object into a JSON representation.
func Marshal(code *Code) ([]byte, error) {
	return json.Marshal(stateFromCode(code))
}

// Unmarshal converts a JSON representation into a Code object.
func Unmarshal(data []byte) (*Code, error) {
	var state codeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return codeFromState(&state)
}

// Serialization types

type locationDef struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
}

type codeState struct {
	Version      int           `json:"version"`
	Name         string        `json:"name,omitempty"`
	Instructions []byte        `json:"instructions"`
	Strings      []string      `json:"strings"`
	Source       string        `json:"source,omitempty"`
	Filename     string        `json:"filename,omitempty"`
	Locations    []locationDef `json:"locations,omitempty"`
	StackSize    int           `json:"stack_size"`
}

func stateFromCode(code *Code) *codeState {
	locations := make([]locationDef, code.LocationCount())
	for i := range locations {
		loc := code.LocationAt(i)
		locations[i] = locationDef{Offset: loc.Offset, Line: loc.Line}
	}
	return &codeState{
		Version:      FormatVersion,
		Name:         code.Name(),
		Instructions: code.Bytes(),
		Strings:      code.Strings(),
		Source:       code.Source(),
		Filename:     code.Filename(),
		Locations:    locations,
		StackSize:    code.StackSize(),
	}
}

func codeFromState(state *codeState) (*Code, error) {
	if state.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported bytecode version %d", state.Version)
	}
	if len(state.Strings) == 0 || state.Strings[EmptyStringID] != "" {
		return nil, fmt.Errorf("invalid string table: entry %d must be empty", EmptyStringID)
	}
	if state.StackSize < 0 {
		return nil, fmt.Errorf("invalid stack size %d", state.StackSize)
	}
	locations := make([]SourceLocation, len(state.Locations))
	for i, loc := range state.Locations {
		locations[i] = SourceLocation{Offset: loc.Offset, Line: loc.Line}
	}
	code := NewCode(CodeParams{
		Name:         state.Name,
		Instructions: state.Instructions,
		Strings:      state.Strings,
		Source:       state.Source,
		Filename:     state.Filename,
		Locations:    locations,
		StackSize:    state.StackSize,
	})
	if _, err := NewInstructionIter(code).All(); err != nil {
		return nil, err
	}
	return code, nil
}
