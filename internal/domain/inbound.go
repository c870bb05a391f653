package domain

// InboundEmail 是从邮箱取回的一封完整邮件中，核心流程
// 关心的两样东西：发件人与纯文本正文。
//
// Text 为空表示没有可提取的 text/plain 正文，这类消息
// 不会进入台账。
type InboundEmail struct {
	From     string // 归一化后的发件人地址
	FromName string // 发件人显示名，可能为空
	Text     string // 解码后的纯文本正文
}
