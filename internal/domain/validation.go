package domain

import (
	"errors"
	"net/mail"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail  = errors.New("invalid email format")
	ErrEmailTooLong  = errors.New("email address too long")
	ErrInvalidStatus = errors.New("invalid client status")
)

// RFC 5322 邮箱地址最大长度
const MaxEmailLength = 254

// NormalizeAddress 归一化邮箱地址，用于客户名单的大小写不敏感比较。
func NormalizeAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail 校验邮箱地址格式。
func ValidateEmail(email string) error {
	email = NormalizeAddress(email)
	if email == "" || len(email) > MaxEmailLength {
		if email == "" {
			return ErrInvalidEmail
		}
		return ErrEmailTooLong
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ErrInvalidEmail
	}
	// mail.ParseAddress 接受 "Name <a@b>"，这里只接受裸地址
	if addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// ParseFromHeader 从 "Name <user@host>" 形式的 From 头中提取
// 归一化后的地址与显示名。解析失败时返回空地址。
func ParseFromHeader(header string) (address, name string) {
	addr, err := mail.ParseAddress(header)
	if err != nil {
		// 某些发件人只写裸地址甚至带杂项文本，尽力截取
		fields := strings.Fields(header)
		for _, f := range fields {
			f = strings.Trim(f, "<>")
			if strings.Count(f, "@") == 1 && ValidateEmail(f) == nil {
				return NormalizeAddress(f), ""
			}
		}
		return "", ""
	}
	return NormalizeAddress(addr.Address), strings.TrimSpace(addr.Name)
}
