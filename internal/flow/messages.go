package flow

import (
	"errors"

	"medivox/internal/audio"
	"medivox/internal/nlu"
	"medivox/internal/stt"
)

// User facing messages, in Korean like the rest of the client.
const (
	MsgListening       = "녹음 중입니다... 다시 누르면 종료됩니다"
	MsgTranscribing    = "음성을 변환하고 있습니다..."
	MsgCancelled       = "녹음을 취소했습니다."
	MsgUnsupported     = "이 장치는 마이크 입력을 지원하지 않습니다."
	MsgStartFailed     = "녹음을 시작할 수 없습니다. 권한을 확인해 주세요."
	MsgBusy            = "이미 음성을 처리하고 있습니다."
	MsgEmptyTranscript = "서버 응답에 변환된 텍스트가 없습니다."
	MsgUploadFailed    = "오디오 파일을 서버로 보내는 데 실패했습니다: "
	MsgCheckNetwork    = "네트워크 연결을 확인해 주세요."
	MsgStopFailed      = "녹음 종료 또는 파일 업로드 중 문제가 발생했습니다."
	MsgDeviceLost      = "녹음 중 마이크 입력이 끊겼습니다."
)

// Localize turns a pipeline error into the message shown to the user.
func Localize(err error) string {
	var se *stt.ServerError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, audio.ErrUnsupportedDevice):
		return MsgUnsupported
	case errors.Is(err, audio.ErrPermissionDenied):
		return MsgStartFailed
	case errors.Is(err, audio.ErrInvalidState):
		return MsgBusy
	case errors.Is(err, stt.ErrEmptyTranscript):
		return MsgEmptyTranscript
	case errors.As(err, &se):
		return MsgUploadFailed + se.Detail
	case stt.IsNetwork(err):
		return MsgUploadFailed + MsgCheckNetwork
	default:
		return MsgStopFailed
	}
}

func localizeStart(err error) string {
	if errors.Is(err, audio.ErrUnsupportedDevice) || errors.Is(err, audio.ErrInvalidState) {
		return Localize(err)
	}
	return MsgStartFailed
}

func localizeRecording(err error) string {
	if errors.Is(err, audio.ErrPermissionDenied) || errors.Is(err, audio.ErrUnsupportedDevice) {
		return Localize(err)
	}
	return MsgDeviceLost
}

// RoutedMessage announces where the user is being taken.
func RoutedMessage(in nlu.Intent) string {
	if in.Kind == nlu.KindHospital {
		return in.HospitalName + "(으)로 길을 안내합니다."
	}
	if in.SymptomQuery == "" {
		return "주변 병원을 찾습니다."
	}
	return "'" + in.SymptomQuery + "' 증상에 맞는 주변 병원을 찾습니다."
}
