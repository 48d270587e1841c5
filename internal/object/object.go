// Package object links the per-function machine code produced by codegen
// into sections, symbols and relocations, then serializes them as a
// relocatable Mach-O (ARM64) or ELF (AMD64) object file (spec §4.6).
// Grounded on the teacher's own section/symbol-table construction in
// std/compiler/elf_x64.go and std/compiler/macho_arm64.go, adapted from
// their fully-linked executable layout (ET_EXEC / MH_EXECUTE, absolute
// virtual addresses, a dyld bind/rebase story) to a relocatable one
// (ET_REL / MH_OBJECT): no program headers or segment virtual addresses,
// every cross-section and cross-function reference expressed as a
// relocation entry against a symbol-table index instead of a patched
// address, the way an AOT compiler hands its output to a real linker.
package object

import (
	"strconv"
	"strings"

	"github.com/cotlang/cotc/internal/codegen"
)

// SectionKind names one of the three sections a Module produces.
type SectionKind int

const (
	SecText SectionKind = iota
	SecRodata
	SecData
)

// RelocKind distinguishes the two reference shapes the code emitter
// produces: a direct call/branch and a PC-relative address load.
type RelocKind int

const (
	RelocCall RelocKind = iota
	RelocAddr
)

// Reloc is one unresolved reference recorded while linking: the
// instruction at Offset bytes into SecText refers to Symbol.
type Reloc struct {
	Offset int
	Symbol string
	Kind   RelocKind
}

// SymKind classifies a Symbol for symbol-table emission.
type SymKind int

const (
	SymFunc SymKind = iota
	SymString
	SymGlobal
	SymUndefined
)

// Symbol is one entry the final symbol table must carry. Undefined
// symbols (runtime externs referenced by a call or address relocation
// but never defined in this module) have Section/Offset/Size unused.
type Symbol struct {
	Name    string
	Kind    SymKind
	Section SectionKind
	Offset  int
	Size    int
}

// Global is a zero-initialized module-level variable (spec §4.6
// "Globals occupy zero-initialized bytes of size_of(type) each").
type Global struct {
	Name string
	Size int
}

// Module accumulates one compilation unit's functions, string literals
// and globals before linking (spec §5 "merged when emitting the data
// section").
type Module struct {
	Funcs   []codegen.FuncCode
	Globals []Global
}

// AddFunc appends one compiled function's code and its unresolved
// references to the module.
func (m *Module) AddFunc(fc codegen.FuncCode) {
	m.Funcs = append(m.Funcs, fc)
}

// AddGlobal declares one zero-initialized global variable.
func (m *Module) AddGlobal(name string, size int) {
	m.Globals = append(m.Globals, Global{Name: name, Size: size})
}

// Linked is the section/symbol/relocation layout a format-specific
// writer serializes. Darwin is conventionally the platform attaching a
// leading underscore to external symbol names; Link's namePrefix argument
// carries that so macho.go and elf.go can share this builder (spec §4.6 "`_<name>`
// on Darwin and `<name>` on Linux").
type Linked struct {
	Text   []byte
	Rodata []byte
	Data   []byte

	Symbols []Symbol
	Relocs  []Reloc
}

// Link assembles every function's code into one text section, interns
// and deduplicates string literals into rodata, lays out globals into
// data, and resolves every codegen.CallRef/AddrRef into a Reloc against
// the final symbol table (spec §4.6 "Relocations are emitted once per
// reference... a corresponding undefined external symbol is added").
func (m *Module) Link(namePrefix string) Linked {
	l := Linked{}

	funcOffset := make(map[string]int, len(m.Funcs))
	for _, fc := range m.Funcs {
		funcOffset[fc.Name] = len(l.Text)
		l.Text = append(l.Text, fc.Code...)
		l.Symbols = append(l.Symbols, Symbol{
			Name: namePrefix + fc.Name, Kind: SymFunc,
			Section: SecText, Offset: funcOffset[fc.Name], Size: len(fc.Code),
		})
	}

	seen := make(map[string]string) // content -> global symbol name
	nextStr := 0
	internString := func(content string) string {
		if sym, ok := seen[content]; ok {
			return sym
		}
		sym := stringSymbolName(nextStr)
		nextStr++
		seen[content] = sym
		off := alignUp(len(l.Rodata), 8)
		for len(l.Rodata) < off {
			l.Rodata = append(l.Rodata, 0)
		}
		l.Rodata = append(l.Rodata, content...)
		l.Symbols = append(l.Symbols, Symbol{
			Name: sym, Kind: SymString, Section: SecRodata,
			Offset: off, Size: len(content),
		})
		return sym
	}

	for _, g := range m.Globals {
		off := alignUp(len(l.Data), 8)
		for len(l.Data) < off {
			l.Data = append(l.Data, 0)
		}
		l.Data = append(l.Data, make([]byte, g.Size)...)
		l.Symbols = append(l.Symbols, Symbol{
			Name: namePrefix + g.Name, Kind: SymGlobal, Section: SecData,
			Offset: off, Size: g.Size,
		})
	}

	defined := make(map[string]bool, len(l.Symbols))
	for _, s := range l.Symbols {
		defined[s.Name] = true
	}
	undefSeen := make(map[string]bool)
	addUndefined := func(name string) {
		if defined[name] || undefSeen[name] {
			return
		}
		undefSeen[name] = true
		l.Symbols = append(l.Symbols, Symbol{Name: name, Kind: SymUndefined})
	}

	for _, fc := range m.Funcs {
		base := funcOffset[fc.Name]
		for _, c := range fc.Calls {
			name := namePrefix + c.Callee
			addUndefined(name)
			l.Relocs = append(l.Relocs, Reloc{Offset: base + c.CodeOffset, Symbol: name, Kind: RelocCall})
		}
		for _, a := range fc.Addrs {
			var sym string
			if a.IsString {
				idx, ok := parseStringSymbolIndex(a.Symbol)
				content := ""
				if ok && idx >= 0 && idx < len(fc.Strings) {
					content = fc.Strings[idx]
				}
				sym = internString(content)
			} else {
				sym = namePrefix + a.Symbol
				addUndefined(sym)
			}
			l.Relocs = append(l.Relocs, Reloc{Offset: base + a.CodeOffset, Symbol: sym, Kind: RelocAddr})
		}
	}

	return l
}

// stringSymbolName must match codegen's own naming (codegen.go
// stringSymbol) so the object writer's dedup table lines up with what
// the emitted code actually references.
func stringSymbolName(i int) string {
	return "L.str." + strconv.Itoa(i)
}

func parseStringSymbolIndex(sym string) (int, bool) {
	const prefix = "L.str."
	if !strings.HasPrefix(sym, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(sym[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

func alignUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
