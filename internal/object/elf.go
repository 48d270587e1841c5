package object

// WriteELF64 serializes a Linked module as a relocatable ELF64 AMD64 object
// file (`ET_REL`, `EM_X86_64`), per spec §4.6 and §6's "ELF: class 64,
// little-endian, ET_REL, machine EM_X86_64". Layout grounded on the
// teacher's own section construction in std/compiler/elf_x64.go, adapted
// from a fully linked `ET_EXEC` image (program header, absolute virtual
// addresses) to a relocatable one: no program header, every section's
// `sh_addr` is 0, and cross-references are `.rela.text` entries against
// symbol-table indices rather than patched addresses.
func WriteELF64(l Linked) []byte {
	const (
		ehdrSize     = 64
		shdrEntSize  = 64
		symEntSize   = 24
		relaEntSize  = 24
		rX86_64_PC32 = 2
	)

	secNameText := 1
	secNameRodata := secNameText + len(".text\x00")
	secNameData := secNameRodata + len(".rodata\x00")
	secNameRela := secNameData + len(".data\x00")
	secNameSymtab := secNameRela + len(".rela.text\x00")
	secNameStrtab := secNameSymtab + len(".symtab\x00")
	secNameShstrtab := secNameStrtab + len(".strtab\x00")
	shstrtab := []byte("\x00.text\x00.rodata\x00.data\x00.rela.text\x00.symtab\x00.strtab\x00.shstrtab\x00")

	// .strtab: symbol names.
	strtab := []byte{0}
	nameOff := make(map[string]int, len(l.Symbols))
	for _, s := range l.Symbols {
		nameOff[s.Name] = len(strtab)
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
	}

	// Every defined symbol is emitted as a global definition, with the
	// undefined externs trailing (ELF requires locals before globals in
	// .symtab; there are no locals here).
	var defined, undefined []Symbol
	for _, s := range l.Symbols {
		if s.Kind == SymUndefined {
			undefined = append(undefined, s)
		} else {
			defined = append(defined, s)
		}
	}
	orderedSyms := append(append([]Symbol(nil), defined...), undefined...)

	symIndex := make(map[string]int, len(orderedSyms))
	for i, s := range orderedSyms {
		symIndex[s.Name] = i + 1 // +1: symtab entry 0 is the null symbol
	}

	secShdrIndex := func(k SectionKind) uint16 {
		switch k {
		case SecText:
			return 1
		case SecRodata:
			return 2
		case SecData:
			return 3
		default:
			return 0
		}
	}

	symtab := make([]byte, symEntSize*(1+len(orderedSyms)))
	for i, s := range orderedSyms {
		off := symEntSize * (i + 1)
		putU32(symtab[off:], uint32(nameOff[s.Name]))
		if s.Kind == SymUndefined {
			symtab[off+4] = 0x10 // STB_GLOBAL<<4 | STT_NOTYPE
			putU16(symtab[off+6:], 0)
			continue
		}
		info := byte(0x10) // STB_GLOBAL
		if s.Kind == SymFunc {
			info |= 0x02 // STT_FUNC
		} else {
			info |= 0x01 // STT_OBJECT
		}
		symtab[off+4] = info
		putU16(symtab[off+6:], secShdrIndex(s.Section))
		putU64(symtab[off+8:], uint64(s.Offset))
		putU64(symtab[off+16:], uint64(s.Size))
	}

	rela := make([]byte, relaEntSize*len(l.Relocs))
	for i, r := range l.Relocs {
		off := relaEntSize * i
		relOff := r.Offset
		if r.Kind == RelocAddr {
			// An address reference starts at its `lea reg, [rip+disp32]`;
			// the disp32 follows the REX, opcode and ModRM bytes.
			relOff += 3
		}
		putU64(rela[off:], uint64(relOff))
		symIdx := uint64(symIndex[r.Symbol])
		putU64(rela[off+8:], symIdx<<32|uint64(rX86_64_PC32))
		putU64(rela[off+16:], uint64(int64(-4)))
	}

	// sh_info of .symtab: index of the first STB_GLOBAL entry. Every
	// symbol here is global (no STB_LOCAL entries are emitted), so that's
	// always 1 (past the mandatory null symbol at index 0).
	const firstGlobal = uint32(1)

	textOff := ehdrSize
	rodataOff := alignUp(textOff+len(l.Text), 8)
	dataOff := alignUp(rodataOff+len(l.Rodata), 8)
	relaOff := alignUp(dataOff+len(l.Data), 8)
	symtabOff := relaOff + len(rela)
	strtabOff := symtabOff + len(symtab)
	shstrtabOff := strtabOff + len(strtab)
	shdrOff := shstrtabOff + len(shstrtab)

	const shdrCount = 8
	total := shdrOff + shdrCount*shdrEntSize
	out := make([]byte, total)

	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4] = 2 // ELFCLASS64
	out[5] = 1 // ELFDATA2LSB
	out[6] = 1 // EV_CURRENT
	putU16(out[16:], 1)               // e_type: ET_REL
	putU16(out[18:], 62)              // e_machine: EM_X86_64
	putU32(out[20:], 1)               // e_version
	putU64(out[40:], uint64(shdrOff)) // e_shoff
	putU16(out[52:], ehdrSize)        // e_ehsize
	putU16(out[58:], shdrEntSize)     // e_shentsize
	putU16(out[60:], shdrCount)       // e_shnum
	putU16(out[62:], 7)               // e_shstrndx: .shstrtab

	copy(out[textOff:], l.Text)
	copy(out[rodataOff:], l.Rodata)
	copy(out[dataOff:], l.Data)
	copy(out[relaOff:], rela)
	copy(out[symtabOff:], symtab)
	copy(out[strtabOff:], strtab)
	copy(out[shstrtabOff:], shstrtab)

	sh := func(i int) []byte { return out[shdrOff+i*shdrEntSize:] }

	s := sh(1) // .text
	putU32(s, uint32(secNameText))
	putU32(s[4:], 1) // SHT_PROGBITS
	putU64(s[8:], 6) // SHF_ALLOC|SHF_EXECINSTR
	putU64(s[24:], uint64(textOff))
	putU64(s[32:], uint64(len(l.Text)))
	putU64(s[48:], 16)

	s = sh(2) // .rodata
	putU32(s, uint32(secNameRodata))
	putU32(s[4:], 1)
	putU64(s[8:], 2)
	putU64(s[24:], uint64(rodataOff))
	putU64(s[32:], uint64(len(l.Rodata)))
	putU64(s[48:], 8)

	s = sh(3) // .data
	putU32(s, uint32(secNameData))
	putU32(s[4:], 1)
	putU64(s[8:], 3)
	putU64(s[24:], uint64(dataOff))
	putU64(s[32:], uint64(len(l.Data)))
	putU64(s[48:], 8)

	s = sh(4) // .rela.text
	putU32(s, uint32(secNameRela))
	putU32(s[4:], 4) // SHT_RELA
	putU64(s[24:], uint64(relaOff))
	putU64(s[32:], uint64(len(rela)))
	putU32(s[40:], 5) // sh_link: .symtab
	putU32(s[44:], 1) // sh_info: .text
	putU64(s[48:], 8)
	putU64(s[56:], relaEntSize)

	s = sh(5) // .symtab
	putU32(s, uint32(secNameSymtab))
	putU32(s[4:], 2) // SHT_SYMTAB
	putU64(s[24:], uint64(symtabOff))
	putU64(s[32:], uint64(len(symtab)))
	putU32(s[40:], 6) // sh_link: .strtab
	putU32(s[44:], firstGlobal)
	putU64(s[48:], 8)
	putU64(s[56:], symEntSize)

	s = sh(6) // .strtab
	putU32(s, uint32(secNameStrtab))
	putU32(s[4:], 3) // SHT_STRTAB
	putU64(s[24:], uint64(strtabOff))
	putU64(s[32:], uint64(len(strtab)))
	putU64(s[48:], 1)

	s = sh(7) // .shstrtab
	putU32(s, uint32(secNameShstrtab))
	putU32(s[4:], 3)
	putU64(s[24:], uint64(shstrtabOff))
	putU64(s[32:], uint64(len(shstrtab)))
	putU64(s[48:], 1)

	return out
}
