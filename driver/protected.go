// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Trusted-execution-environment function ids carried in protected execute
// buffers.
const (
	TEEFuncHWUpdate       uint32 = 0x40000002
	TEEFuncIsSessionAlive uint32 = 0x40000103
)

// ExecuteParams is the payload of a protected execute buffer: a function
// call into the session's trusted execution environment. Input is the
// function's argument blob; OutputMax is the caller-provided capacity for
// the result the TEE writes back.
type ExecuteParams struct {
	FunctionID uint32
	Input      []byte
	OutputMax  uint32
}

// Wire layout of an execute buffer:
//
//	[0:4]   function id
//	[4:8]   input size
//	[8:12]  output capacity
//	[12:16] output size (written by the TEE)
//	[16:16+inputSize]              input data
//	[16+inputSize:16+inputSize+outputCapacity] output region
const executeHeaderSize = 16

// EncodeExecuteParams serializes p into the execute-buffer wire layout.
func EncodeExecuteParams(p ExecuteParams) []byte {
	buf := make([]byte, executeHeaderSize+len(p.Input)+int(p.OutputMax))
	binary.LittleEndian.PutUint32(buf[0:], p.FunctionID)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(p.Input)))
	binary.LittleEndian.PutUint32(buf[8:], p.OutputMax)
	copy(buf[executeHeaderSize:], p.Input)
	return buf
}

// ExecuteBufferSize returns the byte size EncodeExecuteParams would produce.
func ExecuteBufferSize(p ExecuteParams) int {
	return executeHeaderSize + len(p.Input) + int(p.OutputMax)
}

// DecodeExecuteParams parses an execute buffer's request fields. Used by
// driver implementations and test fakes; the output region is returned
// separately so the callee can write results into it.
func DecodeExecuteParams(buf []byte) (ExecuteParams, []byte, error) {
	if len(buf) < executeHeaderSize {
		return ExecuteParams{}, nil, errors.New("driver: execute buffer shorter than header")
	}
	p := ExecuteParams{
		FunctionID: binary.LittleEndian.Uint32(buf[0:]),
		OutputMax:  binary.LittleEndian.Uint32(buf[8:]),
	}
	inSize := binary.LittleEndian.Uint32(buf[4:])
	if executeHeaderSize+int(inSize)+int(p.OutputMax) > len(buf) {
		return ExecuteParams{}, nil, fmt.Errorf("driver: execute buffer truncated: header claims %d+%d bytes, have %d",
			inSize, p.OutputMax, len(buf)-executeHeaderSize)
	}
	p.Input = buf[executeHeaderSize : executeHeaderSize+inSize]
	out := buf[executeHeaderSize+inSize : executeHeaderSize+inSize+p.OutputMax]
	return p, out, nil
}

// SetExecuteOutput writes result into buf's output region and records its
// size in the header. Implementations call this after the TEE returns.
func SetExecuteOutput(buf, result []byte) error {
	p, out, err := DecodeExecuteParams(buf)
	if err != nil {
		return err
	}
	if len(result) > len(out) {
		return fmt.Errorf("driver: execute output %d bytes exceeds capacity %d", len(result), p.OutputMax)
	}
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(result)))
	copy(out, result)
	return nil
}

// ExecuteOutput returns the TEE-written result region of an executed buffer.
func ExecuteOutput(buf []byte) ([]byte, error) {
	p, out, err := DecodeExecuteParams(buf)
	if err != nil {
		return nil, err
	}
	outSize := binary.LittleEndian.Uint32(buf[12:])
	if outSize > p.OutputMax {
		return nil, fmt.Errorf("driver: execute output size %d exceeds capacity %d", outSize, p.OutputMax)
	}
	return out[:outSize], nil
}
