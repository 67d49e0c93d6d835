// Copyright (c) CRMFlow Authors.
// Licensed under the MIT License.

/*
# 概述

Package tools 管理编译得到的工具描述。

Registry 以名称去重：重复注册会原位覆盖并记录警告，而不是返回错误，
这样针对更新后的规范重新编译时无需先清空状态。

# 核心接口/类型

  - Registry — 线程安全的工具注册表（Register / RegisterAll / All / Get / Count）
  - GroupByDomain / Domains — 按 domain 分组，供 compile 命令拆分输出
  - ReadFile / WriteFile / WriteDomainFiles — 工具 JSON 文件读写
*/
package tools
