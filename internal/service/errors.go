package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/webosce/audiod-pro/internal/master"
	"github.com/webosce/audiod-pro/internal/playback"
	"github.com/webosce/audiod-pro/internal/policy"
	"github.com/webosce/audiod-pro/internal/track"
)

// ErrorCode 返回给调用方的错误码
type ErrorCode int

const (
	CodeInternal ErrorCode = iota + 1
	CodeMissingParameter
	CodeUnknownStream
	CodeVolumeRange
	CodeUnknownTrack
	CodeInvalidSession
	CodeInvalidSoundOutput
	CodeInvalidParameter
	CodeUnknownMethod
)

var codeText = map[ErrorCode]string{
	CodeInternal:           "Internal error",
	CodeMissingParameter:   "Missing required parameter",
	CodeUnknownStream:      "Unknown stream type",
	CodeVolumeRange:        "Volume is not in range",
	CodeUnknownTrack:       "Unknown trackId",
	CodeInvalidSession:     "Invalid session id",
	CodeInvalidSoundOutput: "Invalid soundOutput",
	CodeInvalidParameter:   "Invalid parameter",
	CodeUnknownMethod:      "Unknown method",
}

func (c ErrorCode) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return fmt.Sprintf("error %d", int(c))
}

// Error 带错误码的请求错误
type Error struct {
	Code ErrorCode
	Text string
}

func (e *Error) Error() string {
	return e.Text
}

func newError(code ErrorCode, detail string) *Error {
	text := code.String()
	if detail != "" {
		text += ": " + detail
	}
	return &Error{Code: code, Text: text}
}

func missing(names ...string) *Error {
	return newError(CodeMissingParameter, strings.Join(names, ", "))
}

// toError 把各模块的哨兵错误映射为错误码
func toError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, policy.ErrUnknownStream), errors.Is(err, track.ErrUnknownStream):
		return newError(CodeUnknownStream, "")
	case errors.Is(err, policy.ErrVolumeRange), errors.Is(err, master.ErrVolumeRange):
		return newError(CodeVolumeRange, "")
	case errors.Is(err, track.ErrUnknownTrack):
		return newError(CodeUnknownTrack, "")
	case errors.Is(err, policy.ErrInvalidSession), errors.Is(err, master.ErrInvalidSession):
		return newError(CodeInvalidSession, "")
	case errors.Is(err, master.ErrInvalidSoundOutput):
		return newError(CodeInvalidSoundOutput, "")
	case errors.Is(err, playback.ErrInvalidParameter), errors.Is(err, playback.ErrUnknownPlayback):
		return &Error{Code: CodeInvalidParameter, Text: err.Error()}
	default:
		return &Error{Code: CodeInternal, Text: err.Error()}
	}
}

// errorPayload webOS 风格的失败应答
func errorPayload(e *Error) map[string]any {
	return map[string]any{
		"returnValue": false,
		"errorCode":   int(e.Code),
		"errorText":   e.Text,
	}
}
