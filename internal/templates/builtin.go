package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"
)

//go:embed builtin/*.json
var builtinFS embed.FS

// builtinOrder fixes the order packs appear in listings.
var builtinOrder = []string{"core", "planning", "release", "spike", "risk"}

var loadBuiltins = sync.OnceValues(func() ([]*WorkflowPack, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*WorkflowPack, len(entries))
	for _, e := range entries {
		name := path.Join("builtin", e.Name())
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		raw, err := DecodeDocument(name, data)
		if err != nil {
			return nil, err
		}
		p, err := ParsePack(raw)
		if err != nil {
			return nil, fmt.Errorf("built-in %s: %w", name, err)
		}
		for _, t := range p.Types {
			if errs := ValidateTypeTemplate(t); len(errs) > 0 {
				return nil, fmt.Errorf("built-in %s: type %q: %v", name, t.Type, errs)
			}
		}
		byName[p.Pack] = p
	}

	rank := make(map[string]int, len(builtinOrder))
	for i, n := range builtinOrder {
		rank[n] = i
	}
	packs := make([]*WorkflowPack, 0, len(byName))
	for _, p := range byName {
		packs = append(packs, p)
	}
	sort.Slice(packs, func(i, j int) bool {
		ri, iok := rank[packs[i].Pack]
		rj, jok := rank[packs[j].Pack]
		if iok != jok {
			return iok
		}
		if ri != rj {
			return ri < rj
		}
		return packs[i].Pack < packs[j].Pack
	})
	return packs, nil
})

// BuiltinPacks returns the packs compiled into the binary.
func BuiltinPacks() ([]*WorkflowPack, error) {
	return loadBuiltins()
}
