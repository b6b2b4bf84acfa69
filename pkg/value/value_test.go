package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAsIntCoercions(t *testing.T) {
	require.Equal(t, int64(5), Int(5).AsInt())
	require.Equal(t, int64(42), Str("42").AsInt())
	require.Equal(t, int64(0), Str("nope").AsInt())
	require.Equal(t, int64(1), Bool(true).AsInt())
	require.Equal(t, int64(0), Bool(false).AsInt())
	require.Equal(t, int64(0), None().AsInt())
	require.Equal(t, int64(2), NewList([]Value{Int(1), Int(2)}).AsInt())
}

func TestAsBoolCoercions(t *testing.T) {
	require.False(t, Int(0).AsBool())
	require.True(t, Int(1).AsBool())
	require.False(t, Str("").AsBool())
	require.True(t, Str("x").AsBool())
	require.False(t, None().AsBool())
	require.False(t, NewList(nil).AsBool())
	require.True(t, NewList([]Value{Int(1)}).AsBool())
}

func TestTryAsIntReportsUnparseableStr(t *testing.T) {
	n, ok := Str("42").TryAsInt()
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	_, ok = Str("nope").TryAsInt()
	require.False(t, ok)
}

func TestStringNoneIsEmpty(t *testing.T) {
	require.Equal(t, "", None().String())
}

func TestStringJoinsAggregates(t *testing.T) {
	l := NewList([]Value{Int(1), Str("x"), Bool(true)})
	require.Equal(t, "[1, x, true]", l.String())

	d := NewDict(map[string]Value{"a": Int(1)}, []string{"a"})
	require.Equal(t, "{a: 1}", d.String())
}

// TestStringTerminatesOnCycle checks that String() terminates on
// cyclically linked lists without blowing the stack.
func TestStringTerminatesOnCycle(t *testing.T) {
	l := NewList([]Value{Int(1)})
	l.List.Items = append(l.List.Items, l)

	done := make(chan string, 1)
	go func() { done <- l.String() }()
	select {
	case s := <-done:
		require.Equal(t, "[1, [...]]", s)
	case <-time.After(time.Second):
		t.Fatal("String() did not terminate on a cyclic list")
	}
}

func TestEqualityIsByStringification(t *testing.T) {
	// 1 vs true: different stringified forms, so not equal.
	require.NotEqual(t, Int(1).String(), Bool(true).String())
	require.Equal(t, "1", Int(1).String())
	require.Equal(t, "true", Bool(true).String())
}
