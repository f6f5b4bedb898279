package vm

import (
	"bytes"
	"io"

	"github.com/qdrn/massa/internal/wire"
	"github.com/qdrn/massa/types"
)

// Encode serializes Bytecode into the raw form stored as a contract
// address's ledger bytecode, in the same manual varint-framed style as
// internal/wire (no reflection, one function per field).
func Encode(code Bytecode) []byte {
	var buf bytes.Buffer
	wire.PutUvarint(&buf, uint64(len(code)))
	for _, ins := range code {
		buf.WriteByte(byte(ins.Op))
		writeOptAddr(&buf, ins.To)
		wire.EncodeAmount(&buf, ins.Amount)
		wire.PutUvarint(&buf, uint64(len(ins.Key)))
		buf.WriteString(ins.Key)
		wire.PutUvarint(&buf, uint64(len(ins.Value)))
		buf.Write(ins.Value)
		wire.EncodeAddress(&buf, ins.RollAddr)
		wire.PutUvarint(&buf, ins.RollN)
		wire.PutUvarint(&buf, uint64(len(ins.Message)))
		buf.WriteString(ins.Message)
	}
	return buf.Bytes()
}

// Decode parses Bytecode written by Encode.
func Decode(raw []byte) (Bytecode, error) {
	r := bytes.NewReader(raw)
	n, err := wire.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	code := make(Bytecode, 0, n)
	for i := uint64(0); i < n; i++ {
		opByte, err := r.ReadByte()
		if err != nil {
			return nil, wire.ErrTruncated
		}
		ins := Instruction{Op: Op(opByte)}
		if ins.To, err = readOptAddr(r); err != nil {
			return nil, err
		}
		if ins.Amount, err = wire.DecodeAmount(r); err != nil {
			return nil, err
		}
		if ins.Key, err = readString(r); err != nil {
			return nil, err
		}
		if ins.Value, err = readBytes(r); err != nil {
			return nil, err
		}
		if ins.RollAddr, err = wire.DecodeAddress(r); err != nil {
			return nil, err
		}
		if ins.RollN, err = wire.ReadUvarint(r); err != nil {
			return nil, err
		}
		if ins.Message, err = readString(r); err != nil {
			return nil, err
		}
		code = append(code, ins)
	}
	return code, nil
}

func writeOptAddr(buf *bytes.Buffer, a *types.Address) {
	if a == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	wire.EncodeAddress(buf, *a)
}

func readOptAddr(r *bytes.Reader) (*types.Address, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, wire.ErrTruncated
	}
	if tag == 0 {
		return nil, nil
	}
	a, err := wire.DecodeAddress(r)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := wire.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, wire.ErrTruncated
	}
	return b, nil
}
