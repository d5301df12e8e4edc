package handler

import "errors"

var (
	ErrFailedToDecodeRequestBody = errors.New("failed to decode request body")
	ErrTileUnavailable           = errors.New("tile is not cached and could not be fetched")
	ErrCacheClearFailed          = errors.New("failed to clear tile cache")
	ErrTemplateHostNotAllowed    = errors.New("tile template host is not allowed")
	InternalServerError          = errors.New("server encountered a problem and could not process your request")
)
