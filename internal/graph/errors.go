package graph

import "errors"

var (
	ErrNodeNotFound      = errors.New("graph: node not found")
	ErrNotAZombie        = errors.New("graph: node is not a zombie")
	ErrDuplicateIdentity = errors.New("graph: duplicate identity")
	ErrInvalidFilename   = errors.New("graph: filename is required")
	ErrInvalidField      = errors.New("graph: field cannot be edited")
	ErrInvalidFamilyOp   = errors.New("graph: invalid family operation")
	ErrInvalidSnapshot   = errors.New("graph: invalid snapshot")
	ErrTemplate          = errors.New("graph: node is a template")
)
