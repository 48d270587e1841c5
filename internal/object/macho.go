package object

// WriteMachO64 serializes a Linked module as a relocatable Mach-O ARM64
// object file (`MH_OBJECT`, `MH_SUBSECTIONS_VIA_SYMBOLS`), per spec §4.6
// and §6's "magic 0xFEEDFACF, CPU type ARM64 (0x0100000C), filetype
// MH_OBJECT". Layout grounded on the teacher's own load-command and
// symbol-table construction in std/compiler/macho_arm64.go, stripped of
// everything specific to a runnable `MH_EXECUTE` image (PAGEZERO, dyld
// bind/export info, code signing, LC_MAIN): a relocatable object carries
// one anonymous LC_SEGMENT_64 holding __text/__const/__data, a plain
// relocation table for __text, and a symbol table with external (N_EXT)
// definitions plus one entry per undefined runtime extern.
func WriteMachO64(l Linked) []byte {
	const (
		machoMagic   = 0xFEEDFACF
		cpuARM64     = 0x0100000C
		mhObject     = 0x1
		mhSubsecVia  = 0x2000
		lcSegment64  = 0x19
		nlistSize    = 16
		relInfoSize  = 8
		armReloc26   = 2 // ARM64_RELOC_BRANCH26
		armRelPage21 = 3 // ARM64_RELOC_PAGE21
		armRelOff12  = 4 // ARM64_RELOC_PAGEOFF12
	)

	sectionName := func(name string) [16]byte {
		var b [16]byte
		copy(b[:], name)
		return b
	}
	segName := func(name string) [16]byte {
		var b [16]byte
		copy(b[:], name)
		return b
	}

	nsects := 3 // __text, __const, __data
	lcSegSize := 72
	lcSectSize := 80
	segCmdSize := lcSegSize + nsects*lcSectSize

	headerSize := 32 + segCmdSize
	textOff := alignUp(headerSize, 8)
	constOff := alignUp(textOff+len(l.Text), 8)
	dataOff := alignUp(constOff+len(l.Rodata), 8)

	var externs, undefs []Symbol
	for _, s := range l.Symbols {
		if s.Kind == SymUndefined {
			undefs = append(undefs, s)
		} else {
			externs = append(externs, s) // every defined symbol is exported (N_EXT)
		}
	}

	ordered := append(append([]Symbol(nil), externs...), undefs...)

	strtab := []byte{0}
	nameOff := make(map[string]int, len(ordered))
	for _, s := range ordered {
		nameOff[s.Name] = len(strtab)
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
	}

	symIndex := make(map[string]int, len(ordered))
	for i, s := range ordered {
		symIndex[s.Name] = i
	}

	secIndex := func(k SectionKind) byte {
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

	type relEntry struct {
		addr   uint32
		symnum uint32
		pcrel  bool
		length uint32
		extern bool
		typ    uint32
	}
	var textRelocs []relEntry
	for _, r := range l.Relocs {
		typ := uint32(armRelPage21)
		if r.Kind == RelocCall {
			typ = armReloc26
		}
		textRelocs = append(textRelocs, relEntry{
			addr: uint32(r.Offset), symnum: uint32(symIndex[r.Symbol]),
			pcrel: true, length: 2, extern: true, typ: typ,
		})
		if r.Kind == RelocAddr {
			// ADRP+ADD is two instructions; the page-offset half needs
			// its own relocation entry four bytes later.
			textRelocs = append(textRelocs, relEntry{
				addr: uint32(r.Offset + 4), symnum: uint32(symIndex[r.Symbol]),
				pcrel: false, length: 2, extern: true, typ: armRelOff12,
			})
		}
	}

	relocBytes := make([]byte, relInfoSize*len(textRelocs))
	for i, re := range textRelocs {
		off := relInfoSize * i
		putU32(relocBytes[off:], re.addr)
		word := re.symnum & 0xFFFFFF
		if re.pcrel {
			word |= 1 << 24
		}
		word |= (re.length & 0x3) << 25
		if re.extern {
			word |= 1 << 27
		}
		word |= (re.typ & 0xF) << 28
		putU32(relocBytes[off+4:], word)
	}
	relocOff := alignUp(dataOff+len(l.Data), 4)

	symtabOff := relocOff + len(relocBytes)
	symtab := make([]byte, nlistSize*len(ordered))
	for i, s := range ordered {
		off := nlistSize * i
		putU32(symtab[off:], uint32(nameOff[s.Name]))
		if s.Kind == SymUndefined {
			symtab[off+4] = 0x01 // N_EXT (n_type = N_UNDF|N_EXT, N_UNDF=0)
			continue
		}
		symtab[off+4] = 0x0E | 0x01 // N_SECT|N_EXT
		symtab[off+5] = secIndex(s.Section)
		putU64(symtab[off+8:], uint64(s.Offset))
	}

	strtabOff := symtabOff + len(symtab)
	total := strtabOff + len(strtab)
	out := make([]byte, total)

	putU32(out[0:], machoMagic)
	putU32(out[4:], cpuARM64)
	putU32(out[8:], 0) // CPU_SUBTYPE_ALL
	putU32(out[12:], mhObject)
	putU32(out[16:], 2) // ncmds: LC_SEGMENT_64 + LC_SYMTAB
	lcSymtabSize := 24
	putU32(out[20:], uint32(segCmdSize+lcSymtabSize))
	putU32(out[24:], mhSubsecVia)

	off := 32
	putU32(out[off:], lcSegment64)
	putU32(out[off+4:], uint32(segCmdSize))
	sn := segName("")
	copy(out[off+8:], sn[:])
	putU64(out[off+24:], 0) // vmaddr
	putU64(out[off+32:], uint64(dataOff+len(l.Data)-textOff))
	putU64(out[off+40:], uint64(textOff)) // fileoff
	putU64(out[off+48:], uint64(dataOff+len(l.Data)-textOff))
	putU32(out[off+56:], 7) // maxprot rwx
	putU32(out[off+60:], 7) // initprot rwx
	putU32(out[off+64:], uint32(nsects))
	off += lcSegSize

	writeSect := func(name, seg string, addr, fileoff, size uint64, align uint32, flags uint32, nreloc uint32, relocOffset uint32) {
		sn := sectionName(name)
		copy(out[off:], sn[:])
		sg := segName(seg)
		copy(out[off+16:], sg[:])
		putU64(out[off+32:], addr)
		putU64(out[off+40:], size)
		putU32(out[off+48:], uint32(fileoff))
		putU32(out[off+52:], align)
		putU32(out[off+56:], relocOffset)
		putU32(out[off+60:], nreloc)
		putU32(out[off+64:], flags)
		off += lcSectSize
	}

	writeSect("__text", "", uint64(textOff-textOff), uint64(textOff), uint64(len(l.Text)), 2, 0x80000400, uint32(len(textRelocs)), uint32(relocOff))
	writeSect("__const", "", uint64(constOff-textOff), uint64(constOff), uint64(len(l.Rodata)), 3, 0, 0, 0)
	writeSect("__data", "", uint64(dataOff-textOff), uint64(dataOff), uint64(len(l.Data)), 3, 0, 0, 0)

	putU32(out[off:], 0x02) // LC_SYMTAB
	putU32(out[off+4:], uint32(lcSymtabSize))
	putU32(out[off+8:], uint32(symtabOff))
	putU32(out[off+12:], uint32(len(ordered)))
	putU32(out[off+16:], uint32(strtabOff))
	putU32(out[off+20:], uint32(len(strtab)))

	copy(out[textOff:], l.Text)
	copy(out[constOff:], l.Rodata)
	copy(out[dataOff:], l.Data)
	copy(out[relocOff:], relocBytes)
	copy(out[symtabOff:], symtab)
	copy(out[strtabOff:], strtab)

	return out
}
