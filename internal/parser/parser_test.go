package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VioletCranberry/coco-search/internal/lang"
	"github.com/VioletCranberry/coco-search/pkg/types"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	return New(lang.Default())
}

func findSymbol(symbols []types.Symbol, name string) *types.Symbol {
	for i := range symbols {
		if symbols[i].Name == name {
			return &symbols[i]
		}
	}
	return nil
}

func TestParseGo(t *testing.T) {
	src := []byte(`package main

import "fmt"

type Server struct {
	addr string
}

type Handler interface {
	Handle() error
}

func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

func (s *Server) Run() error {
	fmt.Println(s.addr)
	return nil
}
`)

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "go", src)
	require.NoError(t, err)
	assert.Equal(t, "go", result.Language)
	assert.Zero(t, result.ErrorRatio)
	require.Len(t, result.Symbols, 4)

	server := findSymbol(result.Symbols, "Server")
	require.NotNil(t, server)
	assert.Equal(t, types.KindStruct, server.Kind)
	assert.Equal(t, "Server", server.QualifiedName)

	handler := findSymbol(result.Symbols, "Handler")
	require.NotNil(t, handler)
	assert.Equal(t, types.KindInterface, handler.Kind)

	ctor := findSymbol(result.Symbols, "NewServer")
	require.NotNil(t, ctor)
	assert.Equal(t, types.KindFunction, ctor.Kind)
	assert.Equal(t, "func NewServer(addr string) *Server {", ctor.Signature)

	run := findSymbol(result.Symbols, "Run")
	require.NotNil(t, run)
	assert.Equal(t, types.KindMethod, run.Kind)
}

func TestParseGoBodylessDeclarationSkipped(t *testing.T) {
	// Assembly-backed functions have no body and must not surface as
	// symbols.
	src := []byte(`package math

func Sqrt(x float64) float64

func Abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
`)

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "go", src)
	require.NoError(t, err)
	require.Len(t, result.Symbols, 1)
	assert.Equal(t, "Abs", result.Symbols[0].Name)
}

func TestParseSymbolsOrderedByPosition(t *testing.T) {
	src := []byte(`package main

func third() {}

func first() {}

func second() {}
`)

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "go", src)
	require.NoError(t, err)
	require.Len(t, result.Symbols, 3)
	assert.Equal(t, "third", result.Symbols[0].Name)
	assert.Equal(t, "first", result.Symbols[1].Name)
	assert.Equal(t, "second", result.Symbols[2].Name)
}

func TestParsePythonMethodsAndNesting(t *testing.T) {
	src := []byte(`class Stack:
    def __init__(self):
        self.items = []

    def push(self, item):
        self.items.append(item)


def outer():
    def inner():
        return 1
    return inner
`)

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "python", src)
	require.NoError(t, err)

	stack := findSymbol(result.Symbols, "Stack")
	require.NotNil(t, stack)
	assert.Equal(t, types.KindClass, stack.Kind)

	push := findSymbol(result.Symbols, "push")
	require.NotNil(t, push)
	assert.Equal(t, types.KindMethod, push.Kind)
	assert.Equal(t, "Stack.push", push.QualifiedName)
	assert.Equal(t, []string{"Stack", "push"}, push.Hierarchy)

	// Functions nested in functions stay functions.
	inner := findSymbol(result.Symbols, "inner")
	require.NotNil(t, inner)
	assert.Equal(t, types.KindFunction, inner.Kind)
	assert.Equal(t, "outer.inner", inner.QualifiedName)
}

func TestParseRustImplMethods(t *testing.T) {
	src := []byte(`struct Point {
    x: f64,
    y: f64,
}

impl Point {
    fn len(&self) -> f64 {
        (self.x * self.x + self.y * self.y).sqrt()
    }
}

mod geometry {
    fn area(w: f64, h: f64) -> f64 {
        w * h
    }
}
`)

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "rust", src)
	require.NoError(t, err)

	point := findSymbol(result.Symbols, "Point")
	require.NotNil(t, point)
	assert.Equal(t, types.KindStruct, point.Kind)

	length := findSymbol(result.Symbols, "len")
	require.NotNil(t, length)
	assert.Equal(t, types.KindMethod, length.Kind)
	assert.Equal(t, "Point::len", length.QualifiedName)

	area := findSymbol(result.Symbols, "area")
	require.NotNil(t, area)
	assert.Equal(t, types.KindFunction, area.Kind)
	assert.Equal(t, "geometry::area", area.QualifiedName)
}

func TestParseTypeScriptAmbientSignaturesSkipped(t *testing.T) {
	src := []byte(`declare function ambient(x: number): void;

interface Shape {
  area(): number;
}

enum Color {
  Red,
  Green,
}

class Circle {
  radius: number;

  area(): number {
    return Math.PI * this.radius * this.radius;
  }
}

const scale = (x: number) => x * 2;
`)

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "typescript", src)
	require.NoError(t, err)

	// The ambient declaration has no body and produces nothing.
	assert.Nil(t, findSymbol(result.Symbols, "ambient"))

	shape := findSymbol(result.Symbols, "Shape")
	require.NotNil(t, shape)
	assert.Equal(t, types.KindInterface, shape.Kind)

	color := findSymbol(result.Symbols, "Color")
	require.NotNil(t, color)
	assert.Equal(t, types.KindEnum, color.Kind)

	area := findSymbol(result.Symbols, "area")
	require.NotNil(t, area)
	assert.Equal(t, types.KindMethod, area.Kind)
	assert.Equal(t, "Circle.area", area.QualifiedName)

	scale := findSymbol(result.Symbols, "scale")
	require.NotNil(t, scale)
	assert.Equal(t, types.KindFunction, scale.Kind)
}

func TestParseJavaScriptArrowFunctions(t *testing.T) {
	src := []byte(`const add = (a, b) => a + b;

var legacy = () => null;

class Widget {
  render() {
    return add(1, 2);
  }
}
`)

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "javascript", src)
	require.NoError(t, err)

	assert.NotNil(t, findSymbol(result.Symbols, "add"))
	assert.NotNil(t, findSymbol(result.Symbols, "legacy"))

	render := findSymbol(result.Symbols, "render")
	require.NotNil(t, render)
	assert.Equal(t, types.KindMethod, render.Kind)
	assert.Equal(t, "Widget.render", render.QualifiedName)
}

func TestParseUnknownLanguage(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Parse(context.Background(), "fortran", []byte("end"))
	assert.ErrorIs(t, err, lang.ErrUnknownLanguage)
}

func TestParseUnparsable(t *testing.T) {
	// Top-level garbage produces ERROR nodes covering most of the file.
	src := []byte("((((( ))))) }}}}} {{{{ ((((\n")

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "go", src)
	assert.ErrorIs(t, err, ErrUnparsable)
	require.NotNil(t, result)
	assert.Greater(t, result.ErrorRatio, 0.5)
}

func TestParseThresholdOption(t *testing.T) {
	src := []byte("((((( ))))) }}}}} {{{{ ((((\n")

	// With the threshold disabled the same content parses, yielding no
	// symbols.
	p := New(lang.Default(), WithErrorRatioThreshold(1.0))
	result, err := p.Parse(context.Background(), "go", src)
	require.NoError(t, err)
	assert.Empty(t, result.Symbols)
}

func TestParseEmptyContent(t *testing.T) {
	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Symbols)
	assert.Zero(t, result.ErrorRatio)
}

func TestParseSpanLines(t *testing.T) {
	src := []byte(`package main

func greet() {
	println("hi")
}
`)

	p := newTestParser(t)
	result, err := p.Parse(context.Background(), "go", src)
	require.NoError(t, err)
	require.Len(t, result.Symbols, 1)

	span := result.Symbols[0].Span
	assert.Equal(t, 3, span.StartLine)
	assert.Equal(t, 5, span.EndLine)
}
