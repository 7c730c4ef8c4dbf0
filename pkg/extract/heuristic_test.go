package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicGoFunctions(t *testing.T) {
	code := `package sample

func foo() int {
	return 1
}

func (s *Server) bar(x int) error {
	if x < 0 {
		return errInvalid
	}
	return nil
}
`
	ext, err := NewHeuristic().Extract(code)
	require.NoError(t, err)

	require.Len(t, ext.Functions, 2)
	assert.Equal(t, "foo", ext.Functions[0].Name)
	assert.Equal(t, 3, ext.Functions[0].StartLine)
	assert.Equal(t, 5, ext.Functions[0].EndLine)
	assert.Contains(t, ext.Functions[0].Code, "return 1")

	assert.Equal(t, "bar", ext.Functions[1].Name)
	assert.Equal(t, 7, ext.Functions[1].StartLine)
	assert.Equal(t, 12, ext.Functions[1].EndLine)
}

func TestHeuristicGoStructAsClass(t *testing.T) {
	code := `type Config struct {
	Name string
	Port int
}
`
	ext, err := NewHeuristic().Extract(code)
	require.NoError(t, err)

	require.Contains(t, ext.Classes, "Config")
	assert.Equal(t, 1, ext.Classes["Config"].StartLine)
	assert.Equal(t, 4, ext.Classes["Config"].EndLine)
	assert.Contains(t, ext.Classes["Config"].Code, "Port int")
}

func TestHeuristicPython(t *testing.T) {
	code := `class Greeter:
    def __init__(self, name):
        self.name = name

    def greet(self):
        return f"hi {self.name}"

def main():
    print(Greeter("x").greet())
`
	ext, err := NewHeuristic().Extract(code)
	require.NoError(t, err)

	require.Contains(t, ext.Classes, "Greeter")
	assert.Equal(t, 1, ext.Classes["Greeter"].StartLine)
	assert.Equal(t, 6, ext.Classes["Greeter"].EndLine)

	names := make([]string, 0, len(ext.Functions))
	for _, f := range ext.Functions {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"__init__", "greet", "main"}, names)
}

func TestHeuristicJavaScript(t *testing.T) {
	code := `function add(a, b) {
  return a + b;
}

async function fetchAll(urls) {
  return Promise.all(urls.map(fetch));
}

export class Store {
  constructor() {
    this.items = [];
  }
}
`
	ext, err := NewHeuristic().Extract(code)
	require.NoError(t, err)

	require.Len(t, ext.Functions, 2)
	assert.Equal(t, "add", ext.Functions[0].Name)
	assert.Equal(t, "fetchAll", ext.Functions[1].Name)
	assert.Contains(t, ext.Classes, "Store")
}

func TestHeuristicEmptyAndPlainText(t *testing.T) {
	ext, err := NewHeuristic().Extract("")
	require.NoError(t, err)
	assert.Empty(t, ext.Functions)
	assert.Empty(t, ext.Classes)

	ext, err = NewHeuristic().Extract("just some prose\nwith no code at all\n")
	require.NoError(t, err)
	assert.Empty(t, ext.Functions)
	assert.Empty(t, ext.Classes)
}

func TestHeuristicBlockEndsAtDedent(t *testing.T) {
	code := `def first():
    x = 1
    y = 2
z = 3
`
	ext, err := NewHeuristic().Extract(code)
	require.NoError(t, err)

	require.Len(t, ext.Functions, 1)
	assert.Equal(t, 3, ext.Functions[0].EndLine)
	assert.NotContains(t, ext.Functions[0].Code, "z = 3")
}
