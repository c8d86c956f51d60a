package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskvm/taskvm/op"
)

func TestMarshalUnmarshal(t *testing.T) {
	strs := NewStringTable()
	id := strs.Intern("hello")
	b := NewBuffer()
	b.SetLine(2)
	b.EmitConst(float64(id))
	b.Emit(op.PrintStr)
	code := b.Code(strs, CodeParams{
		Name:      "main",
		Source:    "\nprint \"hello\";",
		Filename:  "hello.tvm",
		StackSize: 0,
	})

	data, err := Marshal(code)
	require.Nil(t, err)

	decoded, err := Unmarshal(data)
	require.Nil(t, err)
	require.Equal(t, code.Bytes(), decoded.Bytes())
	require.Equal(t, code.Strings(), decoded.Strings())
	require.Equal(t, "main", decoded.Name())
	require.Equal(t, "hello.tvm", decoded.Filename())
	require.Equal(t, 2, decoded.LineAt(0))
	require.Equal(t, "print \"hello\";", decoded.GetSourceLine(2))
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	_, err := Unmarshal([]byte(`{"version": 9, "strings": [""]}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported bytecode version")

	_, err = Unmarshal([]byte(`{"version": 1, "strings": ["x"]}`))
	require.Error(t, err)

	_, err = Unmarshal([]byte(`{"version": 1, "strings": [""], "stack_size": -4}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid stack size")

	// A single ld_const byte with no operand.
	_, err = Unmarshal([]byte(`{"version": 1, "strings": [""], "instructions": "CQ=="}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "truncated")
}
