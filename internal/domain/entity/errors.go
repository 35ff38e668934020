package entity

import "errors"

// FailureKind классифицирует сбой запроса или отдельной области
type FailureKind string

const (
	KindNone                     FailureKind = ""
	KindDecode                   FailureKind = "decode_error"
	KindEncode                   FailureKind = "encode_error"
	KindBounds                   FailureKind = "bounds_error"
	KindDetectionUnavailable     FailureKind = "detection_unavailable"
	KindExtractionUnavailable    FailureKind = "extraction_unavailable"
	KindNoTextDetected           FailureKind = "no_text_detected"
	KindBelowConfidenceThreshold FailureKind = "below_confidence_threshold"
	KindAlreadyExists            FailureKind = "already_exists"
	KindBlobStore                FailureKind = "blob_store_error"
	KindRelationalStore          FailureKind = "relational_store_error"
	KindInternal                 FailureKind = "internal_error"
)

var (
	ErrDecode                   = errors.New("image decode failed")
	ErrEncode                   = errors.New("image encode failed")
	ErrBounds                   = errors.New("bounding box outside image")
	ErrDetectionUnavailable     = errors.New("region detection unavailable")
	ErrExtractionUnavailable    = errors.New("text extraction unavailable")
	ErrNoTextDetected           = errors.New("no text detected")
	ErrBelowConfidenceThreshold = errors.New("region below confidence threshold")
	ErrAlreadyExists            = errors.New("plate already exists")
	ErrBlobStore                = errors.New("blob store error")
	ErrRelationalStore          = errors.New("relational store error")
	ErrNotFound                 = errors.New("plate not found")
)

var kindBySentinel = []struct {
	err  error
	kind FailureKind
}{
	{ErrDecode, KindDecode},
	{ErrEncode, KindEncode},
	{ErrBounds, KindBounds},
	{ErrDetectionUnavailable, KindDetectionUnavailable},
	{ErrExtractionUnavailable, KindExtractionUnavailable},
	{ErrNoTextDetected, KindNoTextDetected},
	{ErrBelowConfidenceThreshold, KindBelowConfidenceThreshold},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrBlobStore, KindBlobStore},
	{ErrRelationalStore, KindRelationalStore},
}

// KindOf возвращает класс ошибки по первому совпавшему sentinel.
// Неизвестные ошибки относятся к KindInternal.
func KindOf(err error) FailureKind {
	if err == nil {
		return KindNone
	}
	for _, s := range kindBySentinel {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

// RequestFatal сообщает, что ошибка прерывает весь запрос, а не одну область.
func RequestFatal(kind FailureKind) bool {
	switch kind {
	case KindDecode, KindBounds, KindDetectionUnavailable:
		return true
	}
	return false
}
