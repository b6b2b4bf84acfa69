package vmerror

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisplayFormat(t *testing.T) {
	require.Equal(t, "ZeroDivisionError: integer division or modulo by zero", ZeroDivisionError().Error())
	require.Equal(t, "FrozenWriteError: Imported modules are read-only", FrozenWriteErr().Error())
	require.Equal(t, `KeyError: "missing"`, KeyError("missing").Error())
	require.Equal(t, "RuntimeError: boom", Raised("boom").Error())
}

func TestKindIntoRuntimeError(t *testing.T) {
	require.Equal(t, VSyntaxError, KindSyntax.IntoRuntimeError("bad token").Variant)
	require.Equal(t, VRaised, KindGeneric.IntoRuntimeError("boom").Variant)
	require.Equal(t, "UndefinedIdentError: x", KindUndefinedIdent.IntoRuntimeError("x").Error())
}
