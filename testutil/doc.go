/*
Package testutil 提供各包单元测试共用的辅助函数。

# 概述

testutil 收拢上下文、HTTP 录制与消息断言等重复出现的测试基础设施，
子包 mocks 与 fixtures 分别提供生成后端的模拟实现与 CRM 样例数据。

# 核心能力

  - 上下文辅助: TestContext（带超时并自动 Cleanup）/ CancelledContext
  - 断言工具: AssertMessagesEqual 比较消息的角色与内容
  - HTTP 录制: NewRecordingServer 记录每个请求后交给 handler，
    JSONHandler 返回固定状态码与 JSON 响应体

# 子包

  - testutil/mocks: MockProvider 支持固定响应、按 Step（Text / Call / Fail）
    脚本化的多轮响应与自定义 completion 函数，并记录每次调用
  - testutil/fixtures: 线索领域的工具描述、动作映射 JSON、CRM 响应体
    以及 ChatResponse 工厂

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewScriptedProvider(
		mocks.Call("list_leads", nil),
		mocks.Text("Có 2 lead."),
	)
*/
package testutil
