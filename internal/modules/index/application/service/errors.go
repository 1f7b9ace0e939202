package service

import (
	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/pkg/xerr"
)

func errSourceNotFound(sourceID string) error {
	return xerr.Wrapf(index.ErrSourceNotFound, "source %s not indexed", sourceID)
}
