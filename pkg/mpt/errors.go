package mpt

import (
	"errors"

	"github.com/samcharles93/mtprompt/internal/tensor"
)

var (
	// ErrInvalidConfig marks configurations rejected before any parameter
	// is allocated or any checkpoint is read.
	ErrInvalidConfig = errors.New("mpt: invalid config")

	// ErrCheckpoint marks a checkpoint whose keys or shapes do not fit the
	// table. Nothing is applied when it is returned.
	ErrCheckpoint = errors.New("mpt: checkpoint mismatch")

	// ErrInvalidInput marks malformed Compose arguments.
	ErrInvalidInput = errors.New("mpt: invalid input")

	// ErrIndexOutOfRange is returned (wrapped) when a position, task id or
	// source task index falls outside its table.
	ErrIndexOutOfRange error = tensor.ErrIndexOutOfRange
)
