package domain

import "errors"

var (
	// ErrVideoNotFound 找不到影片
	ErrVideoNotFound = errors.New("video not found")
	// ErrVideoExists videoId 已存在
	ErrVideoExists = errors.New("video already exists")
	// ErrVersionConflict compare-and-swap 時 version 已被其他寫入者更新
	ErrVersionConflict = errors.New("video record version conflict")
	// ErrUnsupportedSource 來源不是影片檔
	ErrUnsupportedSource = errors.New("unsupported source file")
	// ErrInvalidTransition 狀態不允許此操作
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSubmitJob 轉碼工作送出失敗
	ErrSubmitJob = errors.New("encode job submission failed")
)
