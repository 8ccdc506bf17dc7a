package errprocess

import (
	"errors"
	"fmt"

	"tiered_video_service/pkg/logger"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap 記錄錯誤並保留原始 error，呼叫端仍可用 errors.Is 判斷
func Wrap(err error, errMsg string) error {
	wrapped := fmt.Errorf("%s : %w", errMsg, err)
	logger.Log.Error(wrapped.Error())
	return wrapped
}
