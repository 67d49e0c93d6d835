package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// summaryPreviewItems caps the items shown to the model in a list summary.
const summaryPreviewItems = 5

// ListResult is a paginated CRM result: {"list": [...], "total": n}.
type ListResult struct {
	Total int
	Items []any
}

// AsListResult recognizes a list-shaped result. Total is the numeric total
// field when present, else the list length. Items holds at most the first
// summaryPreviewItems entries.
func AsListResult(result any) (ListResult, bool) {
	obj, ok := result.(map[string]any)
	if !ok {
		return ListResult{}, false
	}
	list, ok := obj["list"].([]any)
	if !ok {
		return ListResult{}, false
	}
	total := len(list)
	switch v := obj["total"].(type) {
	case float64:
		total = int(v)
	case int:
		total = v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			total = int(n)
		}
	}
	items := list
	if len(items) > summaryPreviewItems {
		items = items[:summaryPreviewItems]
	}
	return ListResult{Total: total, Items: items}, true
}

const (
	summarySystemPrompt       = "Bạn là một trợ lý CRM hữu ích."
	clarificationSystemPrompt = "Bạn là trợ lý ảo."
	errorSystemPrompt         = "Bạn là trợ lý chuyên giải thích lỗi."

	// FallbackAnswer is returned when the model answers with neither text nor a tool call.
	FallbackAnswer = "Tôi có thể giúp gì khác cho bạn không?"

	toolSystemPrompt = "Bạn là một trợ lý CRM chuyên nghiệp. Nhiệm vụ của bạn là sử dụng các tool được cung cấp để thực hiện yêu cầu của người dùng.\n" +
		"QUY TẮC QUAN TRỌNG NHẤT:\n" +
		"- **TUYỆT ĐỐI KHÔNG** được tự bịa ra bất kỳ thông tin nào cho các tham số của tool.\n" +
		"- Nếu yêu cầu của người dùng không cung cấp đủ thông tin cho các tham số BẮT BUỘC, bạn **PHẢI** hỏi lại người dùng để làm rõ."
)

func clarificationPrompt(tool string, missing []string) string {
	return fmt.Sprintf("Người dùng muốn thực hiện '%s' nhưng thiếu: %s. Hãy hỏi lại người dùng.",
		tool, strings.Join(missing, ", "))
}

func errorPrompt(errMsg string) string {
	return fmt.Sprintf("Một yêu cầu API thất bại với lỗi: ```%s```. Hãy diễn giải lỗi này sang ngôn ngữ thân thiện cho người dùng.", errMsg)
}

func listSummaryPrompt(query string, lr ListResult) string {
	items, err := json.MarshalIndent(lr.Items, "", "  ")
	if err != nil {
		items = []byte("[]")
	}
	return fmt.Sprintf("Bạn là một trợ lý CRM. Yêu cầu của người dùng là \"%s\". "+
		"Hệ thống đã tìm thấy tổng cộng %d mục. Dữ liệu của %d mục đầu tiên là:\n"+
		"```json\n%s\n```\n\n"+
		"Nhiệm vụ của bạn là tóm tắt kết quả này cho người dùng bằng tiếng Việt. "+
		"Hãy thông báo tổng số lượng tìm thấy. Nếu có dữ liệu, hãy liệt kê tên (sử dụng trường 'name', 'subject', hoặc tương tự) "+
		"của một vài mục đầu tiên để họ có cái nhìn tổng quan. "+
		"Ví dụ: 'Đã tìm thấy 12 lead. Dưới đây là 3 lead đầu tiên: Lead ABC, Lead XYZ, Lead 123.'",
		query, lr.Total, len(lr.Items), items)
}

func singularSummaryPrompt(query string, result any) string {
	data, err := json.Marshal(result)
	if err != nil {
		data = []byte("{}")
	}
	return fmt.Sprintf("Bạn là một trợ lý CRM chuyên nghiệp bằng tiếng Việt. "+
		"Bạn vừa thực hiện thành công yêu cầu: \"%s\".\n"+
		"Kết quả dữ liệu trả về từ hệ thống là:\n```json\n%s\n```\n\n"+
		"Dựa vào kết quả trên, hãy soạn một câu trả lời tự nhiên, ngắn gọn để xác nhận với người dùng. "+
		"Chỉ đề cập đến những thông tin quan trọng nhất (ví dụ: tên đối tượng, mã ID).",
		query, data)
}

// MissingRequired lists required names whose argument is absent, null, an
// empty string, an empty array or an empty object, in required order.
func MissingRequired(required []string, args map[string]any) []string {
	var missing []string
	for _, name := range required {
		if isEmptyArg(args[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

func isEmptyArg(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}
