package registry

import (
	"testing"

	"github.com/conneroisu/shroot/internal/dom"
	"github.com/stretchr/testify/assert"
)

func dependencyRegistry(t *testing.T, defs map[string]string) *TemplateRegistry {
	t.Helper()
	registry := NewTemplateRegistry()
	for typeID, markup := range defs {
		registry.Register(NewTemplate(typeID, dom.ShadowOpen, fragment(t, markup)))
	}
	return registry
}

func TestDependencyAnalyzer_Dependencies(t *testing.T) {
	registry := dependencyRegistry(t, map[string]string{
		"page-shell":  `<site-header></site-header><main><x-card></x-card><x-card></x-card><x-unknown></x-unknown></main>`,
		"site-header": `<nav>links</nav>`,
		"x-card":      `<x-card></x-card><slot></slot>`,
		"x-lazy":      `<template><x-card></x-card></template>`,
	})
	analyzer := NewDependencyAnalyzer(registry)

	assert.Equal(t, []string{"site-header", "x-card"}, analyzer.Dependencies("page-shell"))
	assert.Equal(t, []string{"site-header", "x-card"}, analyzer.Dependencies("PAGE-SHELL"))
	assert.Empty(t, analyzer.Dependencies("x-card"), "self references are ignored")
	assert.Empty(t, analyzer.Dependencies("x-lazy"), "template contents are inert")
	assert.Nil(t, analyzer.Dependencies("x-missing"))

	assert.Equal(t, []string{"page-shell"}, analyzer.Dependents("x-card"))
	assert.Empty(t, analyzer.Dependents("page-shell"))

	graph := analyzer.DependencyGraph()
	assert.Len(t, graph, 4)
	assert.Empty(t, analyzer.DetectCircularDependencies())
}

func TestDependencyAnalyzer_Cycles(t *testing.T) {
	registry := dependencyRegistry(t, map[string]string{
		"a-one":   `<b-two></b-two>`,
		"b-two":   `<c-three></c-three>`,
		"c-three": `<a-one></a-one>`,
		"d-four":  `<a-one></a-one>`,
	})

	cycles := NewDependencyAnalyzer(registry).DetectCircularDependencies()
	if assert.Len(t, cycles, 1) {
		assert.Equal(t, []string{"a-one", "b-two", "c-three", "a-one"}, cycles[0])
	}
}
