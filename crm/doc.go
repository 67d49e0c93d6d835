/*
包 crm 提供 CRM 动作映射加载、动作执行客户端和用于本地联调的 mock CRM 服务。

# 概述

动作映射文件是 JSON 数组，每项含 action_id、method、path，
action_id 中的 "." 统一替换为 "_"，与工具名对齐。Client.Execute
将工具参数绑定到 HTTP 请求：路径模板中的 {name} 由同名参数替换，
其余参数在 GET/DELETE 时编码为查询串，其他方法编码为 JSON 请求体。

# 核心接口

  - ActionMap / Action：只读的动作映射
  - Client：带 Basic Auth、固定超时与限流的 CRM 客户端，Execute 从不返回 error
  - Result：{ok, result, error} 形式的执行结果
  - MockStore / NewMockHandler：leads 与 accounts 的内存 CRUD 服务

# 主要能力

  - 失败统一转换为 OK=false，由上层生成友好提示
  - 列表接口返回 {list, total}，便于摘要逻辑区分列表与单条结果
  - 动作执行次数与耗时写入 Prometheus 指标
*/
package crm
