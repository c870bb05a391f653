package domain

// RecordFields 分类结果的固定字段数。
//
// 九列依次为：站点、联系邮箱、普通稿件报价、博彩类报价、
// 博彩补充说明、加密货币补充说明、内容要求、我方发信邮箱、原文全文。
// 核心逻辑只关心元数与顺序，不解释各字段语义。
const RecordFields = 9

// ClassificationRecord 是分类器产出、落表器消费的 9 元组。
type ClassificationRecord [RecordFields]string

// RecordFromSlice 将切片收窄为定长记录，元数不为 9 时判定失败。
func RecordFromSlice(values []string) (ClassificationRecord, bool) {
	var rec ClassificationRecord
	if len(values) != RecordFields {
		return rec, false
	}
	copy(rec[:], values)
	return rec, true
}

// Row 以追加到表格所需的形式返回一行数据。
func (r ClassificationRecord) Row() []interface{} {
	row := make([]interface{}, RecordFields)
	for i, v := range r {
		row[i] = v
	}
	return row
}
