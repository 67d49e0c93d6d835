// Package config 提供 crmflow 的配置加载。
//
// 默认值 → YAML 文件 → ESPOCRM_* 兼容变量 → CRMFLOW_* 环境变量，
// 环境变量名由结构体的 env tag 逐级拼接而成，例如 CRMFLOW_CRM_URL、
// CRMFLOW_LLM_API_KEYS。未配置 api_keys 时按 provider 读取
// OPENAI_API_KEY 或 GOOGLEAI_API_KEY、GOOGLEAI_API_KEY_1 ... 。
package config
