// =============================================================================
// 📦 测试数据工厂 - CRM 工具与动作
// =============================================================================
// 提供 leads 领域的工具描述、动作映射和 CRM 响应样例
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// 🧰 工具描述
// =============================================================================

// CreateLeadTool 返回需要 email 的 create_lead 工具
func CreateLeadTool() types.ToolDescriptor {
	params := types.NewParameterSchema()
	params.AddProperty("email", map[string]any{"type": "string", "description": "Lead email"})
	params.AddProperty("name", map[string]any{"type": "string", "description": "Lead name"})
	params.MarkRequired("email")
	return types.ToolDescriptor{
		Name:        "create_lead",
		Description: "Create a lead",
		Parameters:  params,
		Endpoint:    types.Endpoint{Method: "POST", Path: "/leads"},
		Domain:      "leads",
		Action:      "create",
	}
}

// ListLeadsTool 返回无参数的 list_leads 工具
func ListLeadsTool() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:        "list_leads",
		Description: "List leads",
		Parameters:  types.NewParameterSchema(),
		Endpoint:    types.Endpoint{Method: "GET", Path: "/leads"},
		Domain:      "leads",
		Action:      "list",
	}
}

// GetLeadTool 返回带路径参数 id 的 get_lead 工具
func GetLeadTool() types.ToolDescriptor {
	params := types.NewParameterSchema()
	params.AddProperty("id", map[string]any{"type": "string", "description": ""})
	params.MarkRequired("id")
	return types.ToolDescriptor{
		Name:        "get_lead",
		Description: "Get a lead",
		Parameters:  params,
		Endpoint:    types.Endpoint{Method: "GET", Path: "/leads/{id}"},
		Domain:      "leads",
		Action:      "get",
	}
}

// LeadTools 返回 leads 领域的全部工具
func LeadTools() []types.ToolDescriptor {
	return []types.ToolDescriptor{CreateLeadTool(), ListLeadsTool(), GetLeadTool()}
}

// =============================================================================
// 🗺️ 动作映射
// =============================================================================

// LeadActionMapJSON 是与 LeadTools 对应的动作映射文件内容
const LeadActionMapJSON = `[
  {"action_id": "create.lead", "method": "POST", "path": "/leads", "description": "Create a lead"},
  {"action_id": "list_leads", "method": "GET", "path": "/leads"},
  {"action_id": "get_lead", "method": "GET", "path": "/leads/{id}"}
]`

// =============================================================================
// 📄 CRM 响应
// =============================================================================

// LeadsListResponse 返回 n 条 lead 的列表响应，total 为声明的总数
func LeadsListResponse(n, total int) map[string]any {
	list := make([]any, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, map[string]any{"id": i + 1, "name": "Lead " + string(rune('A'+i%26))})
	}
	return map[string]any{"list": list, "total": total}
}

// LeadResponse 返回单条 lead
func LeadResponse(id, email string) map[string]any {
	return map[string]any{"id": id, "email": email}
}
