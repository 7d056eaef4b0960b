package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind 签名流程的错误分类
type ErrorKind string

const (
	// ErrorKindCardCommunication 卡片通信失败（超时、断开），可重试
	ErrorKindCardCommunication ErrorKind = "card_communication"
	// ErrorKindMalformedSignature DER 结构非法或高 S 签名
	ErrorKindMalformedSignature ErrorKind = "malformed_signature"
	// ErrorKindRecoveryFailure 没有任何 recovery id 能恢复出期望地址
	ErrorKindRecoveryFailure ErrorKind = "recovery_failure"
	// ErrorKindInvalidCredential PIN 或 PUK 错误
	ErrorKindInvalidCredential ErrorKind = "invalid_credential"
	// ErrorKindUnsupportedRequest 未知方法、链或交易类型
	ErrorKindUnsupportedRequest ErrorKind = "unsupported_request"
)

// Error 带分类的错误
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 创建分类错误
func NewError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// WrapError 用分类包装底层错误
func WrapError(err error, kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func ErrCardCommunication(err error, reason string) error {
	return WrapError(err, ErrorKindCardCommunication, reason)
}

func ErrMalformedSignature(reason string) error {
	return NewError(ErrorKindMalformedSignature, reason)
}

func ErrRecoveryFailure(reason string) error {
	return NewError(ErrorKindRecoveryFailure, reason)
}

func ErrInvalidCredential(reason string) error {
	return NewError(ErrorKindInvalidCredential, reason)
}

func ErrUnsupportedRequest(reason string) error {
	return NewError(ErrorKindUnsupportedRequest, reason)
}

// KindOf 返回错误链上第一个分类，没有分类时返回空
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// IsKind 判断错误链是否包含指定分类
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
