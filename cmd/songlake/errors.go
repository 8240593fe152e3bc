package main

import (
	"errors"

	"github.com/wdm0006/songlake/pkg/config"
	"github.com/wdm0006/songlake/pkg/io/jsonlio"
	"github.com/wdm0006/songlake/pkg/session"
	"github.com/wdm0006/songlake/pkg/transform/derive"
)

// errorKind names the failure class for the final log line.
func errorKind(err error) string {
	switch {
	case errors.Is(err, config.ErrConfig):
		return "config"
	case errors.Is(err, session.ErrInit):
		return "session"
	case errors.Is(err, jsonlio.ErrNoInput), errors.Is(err, jsonlio.ErrParse):
		return "parse"
	case errors.Is(err, derive.ErrDerive):
		return "derive"
	default:
		return "io"
	}
}
