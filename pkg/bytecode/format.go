// Package bytecode: binary (de)serialization for ".omgb" bytecode images.
//
// Binary Format Layout (little-endian throughout):
//
//	"OMGB" (4 bytes magic)
//	version (u32, packed major<<16|minor<<8|patch)
//	func_count (u32)
//	repeat func_count:
//	  name (lp_str) | param_count (u32) | repeat param_count { name (lp_str) } | entry_addr (u32)
//	code_len (u32)
//	repeat code_len { opcode (u8) | operands per opcode }
//
// lp_str is a u32 byte length followed by raw UTF-8 bytes -- no NUL
// terminator. There is no constant pool: every instruction carries its
// own literal operand inline, which keeps the format a single forward
// pass to decode and the same single forward pass to encode.
package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// magic is the 4-byte file signature for a conforming image.
var magic = [4]byte{'O', 'M', 'G', 'B'}

// maxPrealloc bounds how much capacity Decode will reserve up front from
// a header count it has not yet validated against the input -- a
// truncated or adversarial file can claim an arbitrarily large count,
// and append still grows correctly past this hint as real elements are
// read, so capping it only avoids an upfront multi-gigabyte allocation.
const maxPrealloc = 1 << 16

func clampPrealloc(n uint32) uint32 {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return n
}

// Encode serializes img to the .omgb binary layout and writes it to w.
func Encode(img *Image, w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("bytecode: write magic: %w", err)
	}
	version := img.Version
	if version == 0 {
		version = CurrentVersion
	}
	if err := writeU32(w, version); err != nil {
		return fmt.Errorf("bytecode: write version: %w", err)
	}

	if err := writeU32(w, uint32(len(img.Funcs))); err != nil {
		return fmt.Errorf("bytecode: write func count: %w", err)
	}
	for name, fn := range img.Funcs {
		if err := writeLPStr(w, name); err != nil {
			return fmt.Errorf("bytecode: write func name: %w", err)
		}
		if err := writeU32(w, uint32(len(fn.Params))); err != nil {
			return fmt.Errorf("bytecode: write param count: %w", err)
		}
		for _, p := range fn.Params {
			if err := writeLPStr(w, p); err != nil {
				return fmt.Errorf("bytecode: write param name: %w", err)
			}
		}
		if err := writeU32(w, fn.Address); err != nil {
			return fmt.Errorf("bytecode: write entry address: %w", err)
		}
	}

	if err := writeU32(w, uint32(len(img.Code))); err != nil {
		return fmt.Errorf("bytecode: write code length: %w", err)
	}
	for i, ins := range img.Code {
		if err := writeInstruction(w, ins); err != nil {
			return fmt.Errorf("bytecode: write instruction %d: %w", i, err)
		}
	}

	return nil
}

// Decode reads a .omgb image from r. Any mismatch in the magic header
// or version, or any truncated operand, is a hard decode failure -- the
// format has no partial-recovery mode.
func Decode(r io.Reader) (*Image, error) {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, fmt.Errorf("bytecode: read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("bytecode: bad magic %q, want %q", got, magic)
	}

	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: read version: %w", err)
	}
	if version != CurrentVersion {
		return nil, fmt.Errorf("bytecode: unsupported version %#x (expected %#x)", version, CurrentVersion)
	}

	funcCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: read func count: %w", err)
	}
	funcs := make(map[string]Function, clampPrealloc(funcCount))
	for i := uint32(0); i < funcCount; i++ {
		name, err := readLPStr(r)
		if err != nil {
			return nil, fmt.Errorf("bytecode: read func %d name: %w", i, err)
		}
		paramCount, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("bytecode: read func %d param count: %w", i, err)
		}
		params := make([]string, 0, clampPrealloc(paramCount))
		for j := uint32(0); j < paramCount; j++ {
			p, err := readLPStr(r)
			if err != nil {
				return nil, fmt.Errorf("bytecode: read func %d param %d: %w", i, j, err)
			}
			params = append(params, p)
		}
		addr, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("bytecode: read func %d entry address: %w", i, err)
		}
		funcs[name] = Function{Name: name, Params: params, Address: addr}
	}

	codeLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: read code length: %w", err)
	}
	code := make([]Instruction, 0, clampPrealloc(codeLen))
	for i := uint32(0); i < codeLen; i++ {
		ins, err := readInstruction(r)
		if err != nil {
			return nil, fmt.Errorf("bytecode: read instruction %d: %w", i, err)
		}
		code = append(code, ins)
	}

	return &Image{Version: version, Funcs: funcs, Code: code}, nil
}

// writeInstruction writes one opcode byte followed by whatever operands
// that opcode carries.
func writeInstruction(w io.Writer, ins Instruction) error {
	if err := writeByte(w, byte(ins.Op)); err != nil {
		return err
	}
	switch ins.Op {
	case OpPushInt:
		return writeI64(w, ins.Int)
	case OpPushStr, OpLoad, OpStore, OpCall, OpTailCall, OpAttr, OpStoreAttr:
		return writeLPStr(w, ins.Str)
	case OpPushBool:
		var b byte
		if ins.Bool {
			b = 1
		}
		return writeByte(w, b)
	case OpBuildList, OpBuildDict:
		return writeU32(w, ins.Count)
	case OpJump, OpJumpIfFalse, OpSetupExcept:
		return writeU32(w, ins.Target)
	case OpCallBuiltin:
		if err := writeLPStr(w, ins.Str); err != nil {
			return err
		}
		return writeU32(w, ins.Count)
	case OpCallValue:
		return writeU32(w, ins.Count)
	case OpRaise:
		return writeByte(w, ins.Kind)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpBAnd, OpBOr, OpBXor, OpShl, OpShr, OpAnd, OpOr, OpNot, OpNeg,
		OpIndex, OpSlice, OpPop, OpPushNone, OpRet, OpEmit, OpHalt,
		OpStoreIndex, OpAssert, OpPopBlock,
		OpRaiseSyntax, OpRaiseType, OpRaiseUndefinedIdent, OpRaiseValue, OpRaiseModuleImport:
		return nil
	default:
		return fmt.Errorf("unknown opcode %d", byte(ins.Op))
	}
}

// readInstruction reads one opcode byte and its operands.
func readInstruction(r io.Reader) (Instruction, error) {
	op, err := readByte(r)
	if err != nil {
		return Instruction{}, err
	}
	ins := Instruction{Op: Opcode(op)}
	switch ins.Op {
	case OpPushInt:
		v, err := readI64(r)
		if err != nil {
			return Instruction{}, err
		}
		ins.Int = v
	case OpPushStr, OpLoad, OpStore, OpCall, OpTailCall, OpAttr, OpStoreAttr:
		s, err := readLPStr(r)
		if err != nil {
			return Instruction{}, err
		}
		ins.Str = s
	case OpPushBool:
		b, err := readByte(r)
		if err != nil {
			return Instruction{}, err
		}
		ins.Bool = b != 0
	case OpBuildList, OpBuildDict:
		n, err := readU32(r)
		if err != nil {
			return Instruction{}, err
		}
		ins.Count = n
	case OpJump, OpJumpIfFalse, OpSetupExcept:
		t, err := readU32(r)
		if err != nil {
			return Instruction{}, err
		}
		ins.Target = t
	case OpCallBuiltin:
		s, err := readLPStr(r)
		if err != nil {
			return Instruction{}, err
		}
		n, err := readU32(r)
		if err != nil {
			return Instruction{}, err
		}
		ins.Str, ins.Count = s, n
	case OpCallValue:
		n, err := readU32(r)
		if err != nil {
			return Instruction{}, err
		}
		ins.Count = n
	case OpRaise:
		k, err := readByte(r)
		if err != nil {
			return Instruction{}, err
		}
		ins.Kind = k
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpBAnd, OpBOr, OpBXor, OpShl, OpShr, OpAnd, OpOr, OpNot, OpNeg,
		OpIndex, OpSlice, OpPop, OpPushNone, OpRet, OpEmit, OpHalt,
		OpStoreIndex, OpAssert, OpPopBlock,
		OpRaiseSyntax, OpRaiseType, OpRaiseUndefinedIdent, OpRaiseValue, OpRaiseModuleImport:
		// no operand
	default:
		return Instruction{}, fmt.Errorf("unknown opcode %d", op)
	}
	return ins, nil
}

// EncodeBytes is a convenience wrapper returning the serialized image as
// a byte slice, used by tests that round-trip an image without
// touching the filesystem.
func EncodeBytes(img *Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(img, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeI64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func readI64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func writeLPStr(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readLPStr(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
